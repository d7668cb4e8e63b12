// @title DentiCheck Detection API
// @version 1.0
// @description Dental image detection and screening report generation.
// @host localhost:8000
// @BasePath /api
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"denticheck-server/internal/bootstrap"
)

func main() {
	fmt.Printf("[%s] [INFO] [BOOT] starting denticheck-server...\n", time.Now().Format("2006-01-02 15:04:05.000"))
	if err := bootstrap.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "denticheck-server failed: %v\n", err)
		os.Exit(1)
	}
}
