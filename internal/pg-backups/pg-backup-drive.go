package backups

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/paybridge/paybridge/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Tables holding the gateway's durable state. Only these are backed up; the
// breaker arena is runtime state and rebuilds itself.
var backupTables = []string{
	"auth_configurations",
	"resiliency_configurations",
	"queued_messages",
	"tenant_service_access",
	"downstream_services",
}

// BackupDB dumps the configuration and queue tables to a dated directory
// under the configured backup dir.
func BackupDB() error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	db, err := sql.Open("postgres", conf.DataSource.Dns)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return err
	}

	var dbSize string
	err = db.QueryRow("SELECT pg_size_pretty(pg_database_size(current_database()))").Scan(&dbSize)
	if err != nil {
		return err
	}
	fmt.Printf("Database size: %s\n", dbSize)

	today := time.Now().Format("2006-01-02")
	currentTime := time.Now().Format("150405") // HHMMSS format
	backupDir := fmt.Sprintf("./%s/%s", conf.BackupDir, today)

	if _, err := os.Stat(backupDir); os.IsNotExist(err) {
		err := os.MkdirAll(backupDir, os.ModePerm)
		if err != nil {
			return err
		}
	}

	parsedURL, err := url.Parse(conf.DataSource.Dns)
	if err != nil {
		return err
	}

	dbUser := parsedURL.User.Username()
	dbPassword, _ := parsedURL.User.Password()
	dbHost, dbPort, err := net.SplitHostPort(parsedURL.Host)
	if err != nil {
		return err
	}
	dbName := "paybridge"

	backupFilePath := fmt.Sprintf("%s/paybridge-%s-backup.sql", backupDir, currentTime)
	args := []string{"-U", dbUser, "-d", dbName, "-f", backupFilePath}
	for _, table := range backupTables {
		args = append(args, "-t", table)
	}
	cmd := exec.Command("pg_dump", args...)
	cmd.Env = append(os.Environ(), "PGHOST="+dbHost, "PGPORT="+dbPort, "PGUSER="+dbUser, "PGPASSWORD="+dbPassword)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "pg_dump failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "pg_dump stderr: %v\n", stderr.String())
		return err
	}

	fmt.Printf("Backup successful: %s\n", backupFilePath)
	return nil
}

// ZipUploadToS3 zips today's backup directory and uploads the archive to the
// configured S3 bucket.
func ZipUploadToS3() error {
	cnf, err := config.Fetch()
	if err != nil {
		return err
	}
	today := time.Now().Format("2006-01-02")
	dirToZip := fmt.Sprintf("./%s/%s", cnf.BackupDir, today)
	zipFile := today + ".zip"

	if err := zipDir(dirToZip, zipFile); err != nil {
		return err
	}

	if err := uploadToS3(zipFile, cnf.S3BucketName, zipFile, cnf.AwsAccessKeyId, cnf.AwsSecretAccessKey, cnf.S3Region); err != nil {
		return err
	}

	if err := os.Remove(zipFile); err != nil {
		return err
	}

	fmt.Println("Backup for", today, "zipped and uploaded to S3.")

	return nil
}

func zipDir(srcDir, destZip string) error {
	zipFile, err := os.Create(destZip)
	if err != nil {
		return err
	}
	defer zipFile.Close()

	writer := zip.NewWriter(zipFile)
	defer writer.Close()

	return filepath.Walk(srcDir, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		relPath := filePath[len(srcDir)+1:]
		zipFileWriter, err := writer.Create(relPath)
		if err != nil {
			return err
		}

		srcFile, err := os.Open(filePath)
		if err != nil {
			return err
		}
		defer srcFile.Close()

		_, err = io.Copy(zipFileWriter, srcFile)
		return err
	})
}

func uploadToS3(filePath, bucketName, itemKey, accessKeyID, secretAccessKey, region string) error {
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return err
	}

	client := s3.NewFromConfig(cfg)

	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = client.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(itemKey),
		Body:   file,
	})

	return err
}
