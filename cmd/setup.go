package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"clipflow/internal/store"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).MarginBottom(1)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard for Clipflow",
	Long:  `Configure API keys, create directories, and verify the local database.`,
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	fmt.Println(titleStyle.Render("🎞 Clipflow Setup"))

	steps := []struct {
		name string
		fn   func() error
	}{
		{"Creating directories", createDirectories},
		{"Configuring environment", configureEnv},
		{"Verifying database", verifyDatabase},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	fmt.Println(successStyle.Render("✓ Setup complete. Start the service with: clipflow serve"))
	return nil
}

func createDirectories() error {
	dirs := []string{"artifacts"}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	fmt.Println(successStyle.Render("✓ Created directories"))
	return nil
}

func configureEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		var overwrite bool
		if err := huh.NewConfirm().
			Title("Found existing .env file").
			Description("Overwrite?").
			Value(&overwrite).
			Run(); err != nil {
			return err
		}
		if !overwrite {
			fmt.Println(infoStyle.Render("Kept existing .env"))
			return nil
		}
	}

	env := make(map[string]string)

	required := []struct {
		key, title, desc string
	}{
		{"GROQ_API_KEY", "Groq API key", "Used for script and metadata generation (leave empty to use the stub)"},
		{"RENDER_API_KEY", "Render provider API key", "Authenticates render job submission and polling"},
		{"OPERATOR_TOKEN", "Operator token", "Bearer token protecting the approval endpoints"},
	}
	for _, field := range required {
		var value string
		if err := huh.NewInput().
			Title(field.title).
			Description(field.desc).
			Value(&value).
			Run(); err != nil {
			return err
		}
		if value != "" {
			env[field.key] = value
		}
	}

	var setupYouTube bool
	if err := huh.NewConfirm().
		Title("Configure YouTube publishing?").
		Description("Requires an OAuth client from the Google Cloud console").
		Value(&setupYouTube).
		Run(); err != nil {
		return err
	}
	if setupYouTube {
		for _, key := range []string{"YOUTUBE_CLIENT_ID", "YOUTUBE_CLIENT_SECRET"} {
			var value string
			if err := huh.NewInput().Title(key).Value(&value).Run(); err != nil {
				return err
			}
			if value != "" {
				env[key] = value
			}
		}
	}

	var bucket string
	if err := huh.NewInput().
		Title("GCS bucket for thumbnails (optional)").
		Description("Leave empty to store thumbnails on local disk").
		Value(&bucket).
		Run(); err != nil {
		return err
	}
	if bucket != "" {
		env["GCS_BUCKET"] = bucket
	}

	return writeEnvFile(env)
}

func verifyDatabase() error {
	return runWithSpinner("Opening database", func() error {
		st, err := store.Open("./clipflow.db")
		if err != nil {
			return err
		}
		return st.Close()
	})
}

func writeEnvFile(env map[string]string) error {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&b, "%s=%s\n", key, env[key])
	}

	if err := os.WriteFile(".env", []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("write .env: %w", err)
	}

	fmt.Println(successStyle.Render("✓ Wrote .env"))
	return nil
}

func runWithSpinner(title string, fn func() error) error {
	var runErr error
	if err := spinner.New().
		Title(title).
		Action(func() { runErr = fn() }).
		Run(); err != nil {
		return err
	}
	return runErr
}
