package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	internal_http "github.com/shankarkarande/farmvibes-ai/internal/http"
	"github.com/shankarkarande/farmvibes-ai/internal/log"
	internal_storage "github.com/shankarkarande/farmvibes-ai/internal/storage"
	"github.com/shankarkarande/farmvibes-ai/pkg/cache"
	"github.com/shankarkarande/farmvibes-ai/pkg/service"
	"github.com/shankarkarande/farmvibes-ai/pkg/spec"
	"github.com/spf13/cobra"
)

func SetupCLI(rootCmd *cobra.Command) {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the run API server",
		Run: func(cmd *cobra.Command, args []string) {
			dbConnStr, _ := cmd.Flags().GetString("db")
			port, _ := cmd.Flags().GetString("port")
			workflowsDir, _ := cmd.Flags().GetString("workflows")
			redisAddr, _ := cmd.Flags().GetString("redis")

			store := initStore(dbConnStr)
			defer store.Close()

			opts := []service.Option{}
			if workflowsDir != "" {
				opts = append(opts, service.WithRegistry(spec.NewDirRegistry(workflowsDir)))
			}
			if redisAddr != "" {
				rc, err := cache.NewRedisStore(context.Background(), cache.RedisConfig{Addr: redisAddr})
				if err != nil {
					log.GetLogger().Errorf("Failed to connect to redis: %v", err)
					os.Exit(1)
				}
				defer rc.Close()
				opts = append(opts, service.WithCache(rc))
			}

			svc := service.NewWorkflowService(context.Background(), store, log.GetLogger(), opts...)
			defer svc.Stop()

			if err := internal_http.StartServer(port, svc); err != nil {
				log.GetLogger().Errorf("Server failed: %v", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("port", "8080", "Port to serve the run API on")
	serveCmd.Flags().String("workflows", "", "Directory of workflow YAML files")
	serveCmd.Flags().String("redis", "", "Redis address for the shared result cache (optional)")

	validateCmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a workflow YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ws, err := spec.LoadFile(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Workflow '%s' is valid: %d tasks, %d sources, %d sinks\n",
				ws.Name, len(ws.Tasks), len(ws.Sources), len(ws.Sinks))
		},
	}

	runCmd := &cobra.Command{
		Use:   "run [workflow]",
		Short: "Submit a workflow run to a running server",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			server, _ := cmd.Flags().GetString("server")
			inputsJSON, _ := cmd.Flags().GetString("inputs")
			paramsJSON, _ := cmd.Flags().GetString("parameters")

			payload := map[string]interface{}{"workflow": args[0]}
			if inputsJSON != "" {
				var inputs map[string]interface{}
				if err := json.Unmarshal([]byte(inputsJSON), &inputs); err != nil {
					fmt.Fprintf(os.Stderr, "Error: invalid --inputs JSON: %v\n", err)
					os.Exit(1)
				}
				payload["inputs"] = inputs
			}
			if paramsJSON != "" {
				var params map[string]interface{}
				if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
					fmt.Fprintf(os.Stderr, "Error: invalid --parameters JSON: %v\n", err)
					os.Exit(1)
				}
				payload["parameters"] = params
			}

			body, _ := json.Marshal(payload)
			resp, err := http.Post(server+"/v0/runs", "application/json", bytes.NewReader(body))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to reach server: %v\n", err)
				os.Exit(1)
			}
			defer resp.Body.Close()
			out, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusCreated {
				fmt.Fprintf(os.Stderr, "Error: %s\n", string(out))
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "%s", string(out))
		},
	}
	runCmd.Flags().String("server", "http://localhost:8080", "Run API server address")
	runCmd.Flags().String("inputs", "", "Source inputs as JSON")
	runCmd.Flags().String("parameters", "", "Parameter overrides as JSON")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all runs",
		Run: func(cmd *cobra.Command, args []string) {
			dbConnStr, _ := cmd.Flags().GetString("db")
			store := initStore(dbConnStr)
			defer store.Close()

			runs, err := store.ListRuns()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to list runs: %v\n", err)
				os.Exit(1)
			}
			if len(runs) == 0 {
				fmt.Fprintf(os.Stdout, "No runs found.\n")
				return
			}
			fmt.Fprintf(os.Stdout, "Runs:\n")
			for _, r := range runs {
				fmt.Fprintf(os.Stdout, "- ID: %s, Workflow: %s, Status: %s, Created: %s\n",
					r.ID, r.Workflow, r.Status, r.CreatedAt.Format(time.RFC3339))
			}
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show the status of a run and its tasks",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dbConnStr, _ := cmd.Flags().GetString("db")
			store := initStore(dbConnStr)
			defer store.Close()

			run, err := store.GetRun(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to get run: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Run %s (%s): %s\n", run.ID, run.Workflow, run.Status)
			if run.FailureReason != "" {
				fmt.Fprintf(os.Stdout, "Failure: %s\n", run.FailureReason)
			}
			for _, task := range run.Tasks {
				line := fmt.Sprintf("- %s [%s]: %s", task.Alias, task.Op, task.Status)
				if task.CacheHit {
					line += " (cached)"
				}
				if task.ErrorMsg != "" {
					line += " error: " + task.ErrorMsg
				}
				fmt.Fprintln(os.Stdout, line)
			}
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel [run-id]",
		Short: "Cancel a run on a running server",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			server, _ := cmd.Flags().GetString("server")
			resp, err := http.Post(fmt.Sprintf("%s/v0/runs/%s/cancel", server, args[0]), "application/json", nil)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to reach server: %v\n", err)
				os.Exit(1)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusAccepted {
				out, _ := io.ReadAll(resp.Body)
				fmt.Fprintf(os.Stderr, "Error: %s\n", string(out))
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Cancellation requested for run %s\n", args[0])
		},
	}
	cancelCmd.Flags().String("server", "http://localhost:8080", "Run API server address")

	rootCmd.AddCommand(serveCmd, validateCmd, runCmd, listCmd, statusCmd, cancelCmd)
}

func initStore(dbConnStr string) *internal_storage.PostgresStore {
	store, err := internal_storage.InitStore(dbConnStr)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}
