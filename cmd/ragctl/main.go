// Command ragctl runs ingestion and queries in-process against the
// configured backends.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rag-document-platform/internal/app"
	"rag-document-platform/internal/config"
	"rag-document-platform/internal/logger"
	"rag-document-platform/internal/telemetry"
	"rag-document-platform/services"
)

var (
	ownerID string
	title   string
	page    int
	limit   int

	components *app.Components
	documents  *services.DocumentService
)

var rootCmd = &cobra.Command{
	Use:           "ragctl",
	Short:         "Operate the document pipeline from the command line",
	Long:          `Upload, ingest, query and delete documents using the same services as the API and worker.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.InitLogger(cfg)

		metrics, err := telemetry.InitMetrics()
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		components, err = app.Build(cmd.Context(), cfg, metrics)
		if err != nil {
			return err
		}
		documents = components.DocumentService(services.NewInlineDispatcher(components.Ingestor))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if components != nil {
			components.Close(context.Background())
		}
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload [file.pdf]",
	Short: "Upload a PDF and ingest it synchronously",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents of the owner",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var statusCmd = &cobra.Command{
	Use:   "status [doc-id]",
	Short: "Show processing status",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var queryCmd = &cobra.Command{
	Use:   "query [doc-id] [question]",
	Short: "Ask a question about a processed document",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runQuery,
}

var reingestCmd = &cobra.Command{
	Use:   "reingest [doc-id]",
	Short: "Run ingestion again for a finished document",
	Args:  cobra.ExactArgs(1),
	RunE:  runReingest,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document, its file and its vectors",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Fail documents stuck in PROCESSING once",
	Args:  cobra.NoArgs,
	RunE:  runReap,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&ownerID, "owner", "o", "cli", "Owner id the documents belong to")
	uploadCmd.Flags().StringVarP(&title, "title", "t", "", "Document title (defaults to the file name)")
	listCmd.Flags().IntVar(&page, "page", 1, "Page number")
	listCmd.Flags().IntVar(&limit, "limit", services.DefaultPageSize, "Documents per page")

	rootCmd.AddCommand(uploadCmd, listCmd, statusCmd, queryCmd, reingestCmd, deleteCmd, reapCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	start := time.Now()
	doc, err := documents.Upload(cmd.Context(), services.UploadInput{
		OwnerID:  ownerID,
		Title:    title,
		Filename: filepath.Base(path),
		Size:     info.Size(),
		Body:     f,
	})
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	cmd.Printf("Document %s\n", doc.ID)
	cmd.Printf("  Status: %s\n", doc.Status)
	cmd.Printf("  Chunks: %d\n", doc.ChunkCount)
	if doc.ErrorMessage != "" {
		cmd.Printf("  Error: %s\n", doc.ErrorMessage)
	}
	if doc.Summary != "" {
		cmd.Printf("  Summary: %s\n", doc.Summary)
	}
	cmd.Printf("  Took: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	docs, total, err := documents.List(cmd.Context(), ownerID, page, limit)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		cmd.Printf("No documents found for owner: %s\n", ownerID)
		return nil
	}

	for i := range docs {
		cmd.Printf("  %s  %-10s  %s\n", docs[i].ID, docs[i].Status, docs[i].Title)
	}
	cmd.Printf("\nTotal: %d documents\n", total)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	status, err := documents.Status(cmd.Context(), ownerID, args[0])
	if err != nil {
		return err
	}
	cmd.Printf("%s: %s (%s, %d%%)\n", status.DocumentID, status.Status, status.Stage, status.Percent)
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	answer, err := components.Query.Ask(cmd.Context(), ownerID, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}

	cmd.Println(answer.Answer)
	cmd.Println()
	for i, passage := range answer.Passages {
		cmd.Printf("[%d] %s (distance %.4f)\n", i+1, passage.ID, passage.Distance)
	}
	return nil
}

func runReingest(cmd *cobra.Command, args []string) error {
	doc, err := documents.Reingest(cmd.Context(), ownerID, args[0])
	if err != nil {
		return err
	}
	cmd.Printf("%s: %s, %d chunks\n", doc.ID, doc.Status, doc.ChunkCount)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if err := documents.Delete(cmd.Context(), ownerID, args[0]); err != nil {
		return err
	}
	cmd.Printf("Deleted %s\n", args[0])
	return nil
}

func runReap(cmd *cobra.Command, args []string) error {
	n, err := components.Reaper().Sweep(cmd.Context())
	if err != nil {
		return err
	}
	cmd.Printf("Marked %d stale documents as failed\n", n)
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, services.ErrDocumentNotFound) {
			fmt.Fprintln(os.Stderr, "Error: document not found")
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
