package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dataviz-jp/cartosync/internal/observability"
	"github.com/dataviz-jp/cartosync/pkg/project"
	"github.com/dataviz-jp/cartosync/pkg/projectstore"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage saved cartogram projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the account's projects, newest update first",
	Args:  cobra.NoArgs,
	RunE:  runProjectsList,
}

var projectsSaveCmd = &cobra.Command{
	Use:   "save <payload-file>",
	Short: "Save a project payload",
	Long: `Save a project payload to the configured backend.

The payload file may be JSON or YAML; YAML is converted to JSON before
upload. Pass --id to overwrite an existing project, otherwise a new id
is allocated.

Examples:
  cartosync projects save population.json --name "人口 2025"
  cartosync projects save map.yaml --id 7a9f1c2e-0d4b-4f6a-9c3e-1b2d3f4a5c6e
  cartosync projects save map.json --thumbnail map.png`,
	Args: cobra.ExactArgs(1),
	RunE: runProjectsSave,
}

var projectsLoadCmd = &cobra.Command{
	Use:   "load <id>",
	Short: "Load a project's payload document",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectsLoad,
}

var projectsThumbnailCmd = &cobra.Command{
	Use:   "thumbnail <id>",
	Short: "Fetch a project's thumbnail image",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectsThumbnail,
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectsDelete,
}

var (
	saveName      string
	saveID        string
	saveThumbnail string

	loadOut      string
	thumbnailOut string

	listOutput string
)

func init() {
	rootCmd.AddCommand(projectsCmd)
	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsSaveCmd)
	projectsCmd.AddCommand(projectsLoadCmd)
	projectsCmd.AddCommand(projectsThumbnailCmd)
	projectsCmd.AddCommand(projectsDeleteCmd)

	projectsSaveCmd.Flags().StringVar(&saveName, "name", "", "Project name (default: Untitled Project)")
	projectsSaveCmd.Flags().StringVar(&saveID, "id", "", "Existing project id to overwrite")
	projectsSaveCmd.Flags().StringVar(&saveThumbnail, "thumbnail", "", "PNG thumbnail file to attach")

	projectsLoadCmd.Flags().StringVarP(&loadOut, "out", "o", "", "Write payload to file instead of stdout")
	projectsThumbnailCmd.Flags().StringVarP(&thumbnailOut, "out", "o", "", "Write image to file instead of stdout")

	projectsListCmd.Flags().StringVar(&listOutput, "output", "table", "Output format (table|json)")
}

func runProjectsList(cmd *cobra.Command, args []string) error {
	store, err := buildStore(cfg)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Backend configuration is incomplete", err)
	}
	defer func() { _ = store.Close() }()

	summaries, err := store.List(cmd.Context())
	if err != nil {
		return storeExitError("List projects failed", err)
	}

	if listOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tUPDATED\tCREATED")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			s.ID, s.Name,
			s.UpdatedAt.Format("2006-01-02 15:04"),
			s.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runProjectsSave(cmd *cobra.Command, args []string) error {
	payload, err := readPayloadFile(args[0])
	if err != nil {
		return err
	}

	var thumbnail []byte
	if saveThumbnail != "" {
		thumbnail, err = os.ReadFile(saveThumbnail)
		if err != nil {
			return exitError(foundry.ExitFileReadError, "Cannot read thumbnail file", err)
		}
	}

	store, err := buildStore(cfg)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Backend configuration is incomplete", err)
	}
	defer func() { _ = store.Close() }()

	rec, err := store.Save(cmd.Context(), project.Project{
		ID:      saveID,
		Payload: payload,
	}, saveName, thumbnail)
	if err != nil {
		return storeExitError("Save failed", err)
	}

	observability.CLILogger.Info("Project saved",
		zap.String("id", rec.ID),
		zap.String("name", rec.Name),
		zap.Time("updated_at", rec.UpdatedAt),
	)
	fmt.Println(rec.ID)
	return nil
}

func runProjectsLoad(cmd *cobra.Command, args []string) error {
	store, err := buildStore(cfg)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Backend configuration is incomplete", err)
	}
	defer func() { _ = store.Close() }()

	p, err := store.Load(cmd.Context(), args[0])
	if err != nil {
		return storeExitError("Load failed", err)
	}

	if loadOut != "" {
		if err := os.WriteFile(loadOut, p.Payload, 0o644); err != nil {
			return exitError(foundry.ExitFileWriteError, "Cannot write payload file", err)
		}
		observability.CLILogger.Info("Payload written", zap.String("path", loadOut))
		return nil
	}
	_, err = os.Stdout.Write(append(p.Payload, '\n'))
	return err
}

func runProjectsThumbnail(cmd *cobra.Command, args []string) error {
	store, err := buildStore(cfg)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Backend configuration is incomplete", err)
	}
	defer func() { _ = store.Close() }()

	img, err := store.Thumbnail(cmd.Context(), args[0])
	if err != nil {
		return storeExitError("Thumbnail fetch failed", err)
	}
	if img == nil {
		observability.CLILogger.Info("Project has no thumbnail", zap.String("id", args[0]))
		return nil
	}

	if thumbnailOut != "" {
		if err := os.WriteFile(thumbnailOut, img, 0o644); err != nil {
			return exitError(foundry.ExitFileWriteError, "Cannot write image file", err)
		}
		return nil
	}
	_, err = os.Stdout.Write(img)
	return err
}

func runProjectsDelete(cmd *cobra.Command, args []string) error {
	store, err := buildStore(cfg)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Backend configuration is incomplete", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Delete(cmd.Context(), args[0]); err != nil {
		return storeExitError("Delete failed", err)
	}
	observability.CLILogger.Info("Project deleted", zap.String("id", args[0]))
	return nil
}

// readPayloadFile loads a JSON or YAML payload document and returns it as
// JSON bytes.
func readPayloadFile(path string) (json.RawMessage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, exitError(foundry.ExitFileNotFound, "Cannot read payload file", err)
	}
	if json.Valid(raw) {
		return raw, nil
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Payload is neither valid JSON nor YAML", err)
	}
	converted, err := json.Marshal(doc)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Payload cannot be represented as JSON", err)
	}
	return converted, nil
}

// storeExitError maps store error taxonomy onto exit codes.
func storeExitError(message string, err error) error {
	switch {
	case errors.Is(err, projectstore.ErrAuthRequired):
		observability.CLILogger.Error("No active session; set CARTOSYNC_APP_ACCESS_TOKEN", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, message, err)
	case errors.Is(err, projectstore.ErrNotFound):
		return exitError(foundry.ExitFileNotFound, message, err)
	case errors.Is(err, projectstore.ErrInvalidProject):
		return exitError(foundry.ExitInvalidArgument, message, err)
	default:
		observability.CLILogger.Error(message, zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, message, err)
	}
}
