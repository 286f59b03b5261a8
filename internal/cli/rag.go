package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/open-webui/openwebui-cli/internal/api"
)

const (
	maxUploadSizeMB      = 100
	minSearchQueryLength = 3
	uploadTimeout        = 300 * time.Second
)

// RagCmd creates the rag parent command.
func RagCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rag",
		Short: "RAG file and collection operations",
	}

	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "File operations",
	}
	filesCmd.AddCommand(ragFilesListCmd(opts))
	filesCmd.AddCommand(ragFilesUploadCmd(opts))
	filesCmd.AddCommand(ragFilesDeleteCmd(opts))

	collectionsCmd := &cobra.Command{
		Use:   "collections",
		Short: "Collection operations",
	}
	collectionsCmd.AddCommand(ragCollectionsListCmd(opts))
	collectionsCmd.AddCommand(ragCollectionsCreateCmd(opts))
	collectionsCmd.AddCommand(ragCollectionsDeleteCmd(opts))

	cmd.AddCommand(filesCmd)
	cmd.AddCommand(collectionsCmd)
	cmd.AddCommand(ragSearchCmd(opts))

	return cmd
}

// fileEntry is one uploaded file as returned by GET /api/v1/files/.
type fileEntry struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
}

func (f fileEntry) displayName() string {
	if f.Filename != "" {
		return f.Filename
	}
	return valueOr(f.Name, "-")
}

func (f fileEntry) displaySize() string {
	if f.Size <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f KB", float64(f.Size)/1024)
}

// truncate shortens s to at most n runes, never splitting a multi-byte rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// extractList decodes a response that is either a bare array or an object
// wrapping the array under the given key.
func extractList[T any](data json.RawMessage, key string) ([]T, error) {
	var direct []T
	if err := json.Unmarshal(data, &direct); err == nil {
		return direct, nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	raw, ok := envelope[key]
	if !ok {
		return nil, nil
	}
	var wrapped []T
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return wrapped, nil
}

func ragFilesListCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List uploaded files",
		RunE: func(cmd *cobra.Command, args []string) error {
			render := newRenderer(opts)

			client, err := api.NewClient(opts.clientOptions())
			if err != nil {
				return err
			}
			defer client.Close()

			data, err := client.Get(cmd.Context(), "/api/v1/files/")
			if err != nil {
				return err
			}

			files, err := extractList[fileEntry](data, "files")
			if err != nil {
				return err
			}
			if len(files) == 0 {
				render.Warnf("No files found.")
				return nil
			}

			if render.structured() {
				return render.Emit(files)
			}

			rows := make([][]string, 0, len(files))
			for _, f := range files {
				rows = append(rows, []string{valueOr(f.ID, "-"), f.displayName(), f.displaySize()})
			}
			render.Table("Uploaded Files", []string{"ID", "FILENAME", "SIZE"}, rows)
			return nil
		},
	}
}

func ragFilesUploadCmd(opts *Options) *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload file(s) for RAG",
		Args:  minimumArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRagUpload(cmd.Context(), opts, args, collection)
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Add to collection")

	return cmd
}

func runRagUpload(ctx context.Context, opts *Options, paths []string, collection string) error {
	render := newRenderer(opts)

	clientOpts := opts.clientOptions()
	if clientOpts.Timeout <= 0 {
		clientOpts.Timeout = uploadTimeout
	}
	client, err := api.NewClient(clientOpts)
	if err != nil {
		return err
	}
	defer client.Close()

	var succeeded, failed int
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			render.Warnf("Error: file not found: %s", path)
			failed++
			continue
		}
		if info.IsDir() {
			render.Warnf("Error: not a file: %s", path)
			failed++
			continue
		}

		sizeMB := float64(info.Size()) / (1 << 20)
		if sizeMB > maxUploadSizeMB {
			render.Warnf("Warning: file %q is %.1fMB (exceeds %dMB limit), upload may fail or be slow",
				info.Name(), sizeMB, maxUploadSizeMB)
		}
		if sizeMB > 10 {
			render.Infof("Uploading: %s (%.1fMB)...", info.Name(), sizeMB)
		}

		data, err := client.UploadFile(ctx, "/api/v1/files/", path)
		if err != nil {
			render.Warnf("Error uploading %q: %v", info.Name(), err)
			render.Infof("  Tip: check file permissions and server logs.")
			failed++
			continue
		}

		var uploaded struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(data, &uploaded)
		if uploaded.ID == "" {
			render.Warnf("Warning: upload succeeded but got no file ID")
			failed++
			continue
		}

		render.Successf("Uploaded: %s (id: %s)", info.Name(), uploaded.ID)
		succeeded++

		if collection != "" {
			_, err := client.Post(ctx, "/api/v1/knowledge/"+collection+"/file/add",
				map[string]string{"file_id": uploaded.ID})
			if err != nil {
				render.Warnf("  Error: could not add to collection %q: %v", collection, err)
			} else {
				render.Successf("  Added to collection: %s", collection)
			}
		}
	}

	render.Infof("\nSummary: %d successful, %d failed", succeeded, failed)
	return nil
}

func ragFilesDeleteCmd(opts *Options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <file-id>",
		Short: "Delete an uploaded file",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			render := newRenderer(opts)
			fileID := args[0]

			if fileID == "" {
				return api.Usagef("file ID cannot be empty")
			}
			if !force && !confirm(fmt.Sprintf("Delete file %s?", fileID)) {
				render.Warnf("Delete cancelled.")
				return nil
			}

			client, err := api.NewClient(opts.clientOptions())
			if err != nil {
				return err
			}
			defer client.Close()

			if _, err := client.Delete(cmd.Context(), "/api/v1/files/"+fileID); err != nil {
				return err
			}
			render.Successf("Deleted file: %s", fileID)
			return nil
		},
	}

	// No shorthand: "f" belongs to the global --format flag.
	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation")

	return cmd
}

// collectionEntry is one knowledge collection.
type collectionEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func ragCollectionsListCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List knowledge collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			render := newRenderer(opts)

			client, err := api.NewClient(opts.clientOptions())
			if err != nil {
				return err
			}
			defer client.Close()

			data, err := client.Get(cmd.Context(), "/api/v1/knowledge/")
			if err != nil {
				return err
			}

			collections, err := extractList[collectionEntry](data, "collections")
			if err != nil {
				return err
			}
			if len(collections) == 0 {
				render.Warnf("No collections found. Create one with: openwebui rag collections create")
				return nil
			}

			if render.structured() {
				return render.Emit(collections)
			}

			rows := make([][]string, 0, len(collections))
			for _, c := range collections {
				desc := truncate(c.Description, 50)
				rows = append(rows, []string{valueOr(c.ID, "-"), valueOr(c.Name, "-"), valueOr(desc, "-")})
			}
			render.Table("Knowledge Collections", []string{"ID", "NAME", "DESCRIPTION"}, rows)
			return nil
		},
	}
}

func ragCollectionsCreateCmd(opts *Options) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a knowledge collection",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			render := newRenderer(opts)
			name := strings.TrimSpace(args[0])

			if name == "" {
				return api.Usagef("collection name cannot be empty")
			}

			client, err := api.NewClient(opts.clientOptions())
			if err != nil {
				return err
			}
			defer client.Close()

			data, err := client.Post(cmd.Context(), "/api/v1/knowledge/", map[string]string{
				"name":        name,
				"description": strings.TrimSpace(description),
			})
			if err != nil {
				return err
			}

			var created struct {
				ID string `json:"id"`
			}
			_ = json.Unmarshal(data, &created)
			if created.ID == "" {
				render.Warnf("Warning: collection created but got no ID")
				return nil
			}
			render.Successf("Created collection: %s (id: %s)", name, created.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Collection description")

	return cmd
}

func ragCollectionsDeleteCmd(opts *Options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <collection-id>",
		Short: "Delete a knowledge collection",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			render := newRenderer(opts)
			collectionID := args[0]

			if collectionID == "" {
				return api.Usagef("collection ID cannot be empty")
			}
			if !force && !confirm(fmt.Sprintf("Delete collection %s? This cannot be undone.", collectionID)) {
				render.Warnf("Delete cancelled.")
				return nil
			}

			client, err := api.NewClient(opts.clientOptions())
			if err != nil {
				return err
			}
			defer client.Close()

			if _, err := client.Delete(cmd.Context(), "/api/v1/knowledge/"+collectionID); err != nil {
				return err
			}
			render.Successf("Deleted collection: %s", collectionID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation")

	return cmd
}

// searchResult is one hit of a collection query. Content may arrive under
// "content" or "text", score under "score" or "distance".
type searchResult struct {
	Content  string         `json:"content"`
	Text     string         `json:"text"`
	Score    *float64       `json:"score"`
	Distance *float64       `json:"distance"`
	Metadata map[string]any `json:"metadata"`
}

func (r searchResult) body() string {
	if r.Content != "" {
		return r.Content
	}
	return r.Text
}

func (r searchResult) scoreString() string {
	if r.Score != nil {
		return fmt.Sprintf("%.4f", *r.Score)
	}
	if r.Distance != nil {
		return fmt.Sprintf("%.4f", *r.Distance)
	}
	return "-"
}

func (r searchResult) source() string {
	if src, ok := r.Metadata["source"].(string); ok && src != "" {
		return src
	}
	return ""
}

func ragSearchCmd(opts *Options) *cobra.Command {
	var (
		collection string
		topK       int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search within a collection (vector search)",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRagSearch(cmd.Context(), opts, args[0], collection, topK)
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection ID to search")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, "Number of results")

	return cmd
}

func runRagSearch(ctx context.Context, opts *Options, query, collection string, topK int) error {
	render := newRenderer(opts)

	query = strings.TrimSpace(query)
	if query == "" {
		return api.Usagef("search query cannot be empty")
	}
	if len(query) < minSearchQueryLength {
		return api.Usagef("search query must be at least %d characters", minSearchQueryLength)
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return api.Usagef("collection ID is required (use --collection or -c)")
	}
	if topK < 1 {
		return api.Usagef("number of results (--top-k) must be at least 1")
	}
	if topK > 100 {
		render.Warnf("Warning: requesting more than 100 results may be slow.")
	}

	client, err := api.NewClient(opts.clientOptions())
	if err != nil {
		return err
	}
	defer client.Close()

	data, err := client.Post(ctx, "/api/v1/knowledge/"+collection+"/query", map[string]any{
		"query": query,
		"k":     topK,
	})
	if err != nil {
		return err
	}

	// Results live under "results" or "documents" depending on the backend.
	results, err := extractList[searchResult](data, "results")
	if err != nil {
		return err
	}
	if results == nil {
		results, err = extractList[searchResult](data, "documents")
		if err != nil {
			return err
		}
	}

	if len(results) == 0 {
		render.Warnf("No results found for query: %q", query)
		render.Infof("Try adjusting your search query and try again.")
		return nil
	}

	if render.structured() {
		return render.Emit(results)
	}

	render.Fieldf("Search results for", "%s (%d result(s))", query, len(results))
	fmt.Println()
	for i, result := range results {
		content := truncate(result.body(), 200)
		fmt.Printf("%d. (score: %s)\n", i+1, result.scoreString())
		if src := result.source(); src != "" {
			fmt.Printf("   Source: %s\n", src)
		}
		fmt.Printf("   %s...\n\n", content)
	}
	return nil
}
