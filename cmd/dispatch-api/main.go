package main

import (
	"fmt"
	"os"
)

// @title Dispatch API
// @version 1.0.0
// @description Maintenance request dispatch: customers raise requests, nearby workers claim and complete them.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
