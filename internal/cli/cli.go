package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	internal_http "github.com/avizh98/gofor/internal/http"
	"github.com/avizh98/gofor/internal/log"
	internal_storage "github.com/avizh98/gofor/internal/storage"
	"github.com/avizh98/gofor/pkg/models"
	"github.com/avizh98/gofor/pkg/service"
)

func SetupCLI(rootCmd *cobra.Command) {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the task broker HTTP server with the deadline watcher",
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			port, _ := cmd.Flags().GetString("port")
			interval, _ := cmd.Flags().GetDuration("watch-interval")

			svc := newService(store)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			watcher := service.NewDeadlineWatcher(svc, interval, log.GetLogger())
			watcher.Start(ctx)

			if err := internal_http.StartServer(port, svc, jwtSecret()); err != nil {
				log.GetLogger().Errorf("Server failed: %v", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("port", "8080", "HTTP listen port")
	serveCmd.Flags().Duration("watch-interval", service.DefaultWatchInterval, "Deadline scan interval")

	expireCmd := &cobra.Command{
		Use:   "expire",
		Short: "Run a single deadline-expiry scan",
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			svc := newService(store)
			count, err := svc.ExpireDeadlines()
			if err != nil {
				log.GetLogger().Errorf("Failed to expire deadlines: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to expire deadlines: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Expired %d task(s)\n", count)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List a requester's tasks",
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			requesterID, _ := cmd.Flags().GetString("requester")
			status, _ := cmd.Flags().GetString("status")
			if requesterID == "" {
				fmt.Fprintln(os.Stderr, "Error: --requester is required")
				os.Exit(1)
			}
			svc := newService(store)
			tasks, err := svc.ListTasksByRequester(requesterID, models.TaskStatus(status))
			if err != nil {
				log.GetLogger().Errorf("Failed to list tasks: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to list tasks: %v\n", err)
				os.Exit(1)
			}
			if len(tasks) == 0 {
				fmt.Fprintf(os.Stdout, "No tasks found.\n")
				return
			}
			for _, task := range tasks {
				fmt.Fprintf(os.Stdout, "- ID: %s, Title: %s, Status: %s, Total: %.2f, Created: %s\n",
					task.ID, task.Title, task.Status, task.TotalAmount, task.CreatedAt.Format(time.RFC3339))
			}
		},
	}
	listCmd.Flags().String("requester", "", "Requester id")
	listCmd.Flags().String("status", "", "Optional status filter")

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for local testing",
		Run: func(cmd *cobra.Command, args []string) {
			userID, _ := cmd.Flags().GetString("user")
			role, _ := cmd.Flags().GetString("role")
			if userID == "" {
				fmt.Fprintln(os.Stderr, "Error: --user is required")
				os.Exit(1)
			}
			token, err := internal_http.GenerateToken(jwtSecret(), userID, role)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to sign token: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintln(os.Stdout, token)
		},
	}
	tokenCmd.Flags().String("user", "", "User id for the token subject")
	tokenCmd.Flags().String("role", "requester", "Role claim (requester or helper)")

	rootCmd.AddCommand(serveCmd, expireCmd, listCmd, tokenCmd)
}

func newService(store *internal_storage.PostgresStore) *service.TaskService {
	// The static directory stands in until the identity service client is
	// wired; it keeps the matching queries runnable locally.
	directory := service.NewStaticDirectory()
	notifier := service.LogNotifier{Logger: log.GetLogger()}
	return service.NewTaskService(store, directory, notifier, log.GetLogger())
}

func initStore(cmd *cobra.Command) *internal_storage.PostgresStore {
	dbConnStr, err := cmd.Flags().GetString("db")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving db flag: %v", err)
		os.Exit(1)
	}
	store, err := internal_storage.NewPostgresStore(dbConnStr)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}

func jwtSecret() []byte {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret"
	}
	return []byte(secret)
}
