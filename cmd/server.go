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
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/paybridge/paybridge"
	"github.com/paybridge/paybridge/api"
	"github.com/paybridge/paybridge/config"
	trace "github.com/paybridge/paybridge/internal/traces"
)

// serveTLS starts the HTTPS listener with CertMagic managing the certificate.
// Without a configured domain it falls back to localhost.
func serveTLS(r *gin.Engine, conf config.ServerConfig) error {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: "path/to/certmagic/storage"}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(context.Background(), domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}

	log.Printf("Starting HTTPS server on %s\n", conf.Port)
	if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start HTTPS server: %v", err)
	}

	return nil
}

func initializeTracing(ctx context.Context) (func(context.Context) error, error) {
	shutdown, err := trace.SetupOTelSDK(ctx, "PAYBRIDGE")
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return shutdown, nil
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	if cfg.SSL {
		return serveTLS(router, cfg)
	}
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

// serverCommands returns the `start` command. The API node also runs the
// self-healing monitor so the health view and recovery signal live where the
// traffic is served.
func serverCommands(b *bridgeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start paybridge server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			cfg, err := config.Fetch()
			if err != nil {
				log.Fatal(err)
			}

			shutdown, err := initializeTracing(ctx)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			monitor := paybridge.NewSelfHealingMonitor(b.bridge)
			go func() {
				if err := monitor.Start(ctx); err != nil {
					log.Printf("self-healing monitor stopped: %v", err)
				}
			}()

			router := api.NewAPI(b.bridge, monitor).Router()

			if err := startServer(router, cfg.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
