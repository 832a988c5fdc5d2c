/*
Copyright 2024 PayBridge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/paybridge/paybridge"
	"github.com/paybridge/paybridge/config"
	"github.com/paybridge/paybridge/database"
	"github.com/paybridge/paybridge/internal/notification"
)

// PayBridgeCLI wraps the root Cobra command.
type PayBridgeCLI struct {
	cmd *cobra.Command
}

// bridgeInstance holds the runtime PayBridge instance and its configuration,
// shared by every subcommand.
type bridgeInstance struct {
	bridge *paybridge.PayBridge
	cnf    *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the PayBridge instance before any
// subcommand executes.
func preRun(app *bridgeInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("paybridge.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newBridge, err := setupBridge(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.bridge = newBridge
		app.cnf = cnf

		return nil
	}
}

func setupBridge(cfg *config.Configuration) (*paybridge.PayBridge, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newBridge, err := paybridge.NewPayBridge(db)
	if err != nil {
		return nil, fmt.Errorf("error creating paybridge: %v", err)
	}
	return newBridge, nil
}

// NewCLI builds the command tree: server, workers, migrate, backup and config.
func NewCLI() *PayBridgeCLI {
	var configFile string
	b := &bridgeInstance{}

	var rootCmd = &cobra.Command{
		Use:   "paybridge",
		Short: "Downstream payment gateway",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./paybridge.json", "Configuration file for the gateway")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(backupCommands(b))
	rootCmd.AddCommand(configCommands())

	return &PayBridgeCLI{cmd: rootCmd}
}

func (w PayBridgeCLI) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
