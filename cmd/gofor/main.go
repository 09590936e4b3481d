package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/avizh98/gofor/internal/cli"
)

var rootCmd = &cobra.Command{Use: "gofor"}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("No .env file found or failed to load: %v. Using flags and env vars.\n", err)
	}
	rootCmd.PersistentFlags().String("db", os.Getenv("DATABASE_URL"), "Database connection string")
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
