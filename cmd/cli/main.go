package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL    string
	execLanguage string
	fileLanguage string
	output       string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "interpreter-cli",
		Short:        "CLI client for the code interpreter service",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:5000", "Server URL")

	// Execute command
	execCmd := &cobra.Command{
		Use:   "exec [code]",
		Short: "Execute a snippet (reads stdin when no argument is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExec,
	}
	execCmd.Flags().StringVarP(&execLanguage, "language", "l", "python", "Language (python, bash)")
	root.AddCommand(execCmd)

	// Execute from file
	execFileCmd := &cobra.Command{
		Use:   "exec-file [file]",
		Short: "Execute code from a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runExecFile,
	}
	execFileCmd.Flags().StringVarP(&fileLanguage, "language", "l", "", "Language (auto-detected from extension)")
	root.AddCommand(execFileCmd)

	// Render a chart
	chartCmd := &cobra.Command{
		Use:   "chart [file]",
		Short: "Render a plotly snippet to HTML",
		Args:  cobra.ExactArgs(1),
		RunE:  runChart,
	}
	chartCmd.Flags().StringVarP(&output, "output", "o", "chart.html", "Where to write the HTML document")
	root.AddCommand(chartCmd)

	// Health check
	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE:  runHealth,
	})

	// Install ledger
	installsCmd := &cobra.Command{
		Use:   "installs",
		Short: "List recent dependency installs",
		RunE:  runInstalls,
	}
	installsCmd.Flags().String("package", "", "Only show installs of this package")
	root.AddCommand(installsCmd)

	return root
}

func runExec(cmd *cobra.Command, args []string) error {
	var code string

	if len(args) > 0 {
		code = args[0]
	} else {
		// Read from stdin
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		code = string(data)
	}

	return executeCode(cmd, code, execLanguage)
}

func runExecFile(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	// Auto-detect language from extension
	lang := fileLanguage
	if lang == "" {
		detected, err := languageFor(args[0])
		if err != nil {
			return err
		}
		lang = detected
	}

	return executeCode(cmd, string(data), lang)
}

func languageFor(path string) (string, error) {
	switch ext := filepath.Ext(path); ext {
	case ".py":
		return "python", nil
	case ".sh", ".bash":
		return "bash", nil
	default:
		return "", fmt.Errorf("cannot detect language for extension %q, use --language flag", ext)
	}
}

func executeCode(cmd *cobra.Command, code, lang string) error {
	resp, err := postJSON("/execute", map[string]string{"code": code, "language": lang})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return printError(cmd, resp)
	}

	var result struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, result.Result)
	if len(result.Result) > 0 && result.Result[len(result.Result)-1] != '\n' {
		fmt.Fprintln(out)
	}
	return nil
}

func runChart(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	resp, err := postJSON("/generate_chart", map[string]string{"code": string(data)})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Snippet failures come back as 200 with a JSON error body.
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); resp.StatusCode != http.StatusOK || mt == "application/json" {
		return printError(cmd, resp)
	}

	html, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading chart: %w", err)
	}
	if err := os.WriteFile(output, html, 0o644); err != nil { // #nosec G306 -- chart is meant to be opened in a browser
		return fmt.Errorf("writing chart: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", output, len(html))
	return nil
}

func runHealth(cmd *cobra.Command, _ []string) error {
	return getAndPrint(cmd, "/health")
}

func runInstalls(cmd *cobra.Command, _ []string) error {
	path := "/installs"
	if pkg, _ := cmd.Flags().GetString("package"); pkg != "" {
		path += "?package=" + url.QueryEscape(pkg)
	}
	return getAndPrint(cmd, path)
}

// Executions are unbounded by default, so the client does not time out.
var client = &http.Client{}

func postJSON(path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, serverURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func getAndPrint(cmd *cobra.Command, path string) error {
	c := &http.Client{Timeout: 10 * time.Second}
	resp, err := c.Get(serverURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(formatted))
	return nil
}

func printError(cmd *cobra.Command, resp *http.Response) error {
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(cmd.ErrOrStderr(), string(formatted))
	return fmt.Errorf("server returned %s", resp.Status)
}
