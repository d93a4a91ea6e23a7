package main

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a workflow to a running Workflow Manager",
	RunE: func(cmd *cobra.Command, args []string) error {
		wfmAddr, _ := cmd.Flags().GetString("wfm-addr")
		wfName, _ := cmd.Flags().GetString("name")
		mainCWL, _ := cmd.Flags().GetString("main")
		yamlPath, _ := cmd.Flags().GetString("inputs")
		archivePath, _ := cmd.Flags().GetString("archive")
		workdir, _ := cmd.Flags().GetString("workdir")

		if wfName == "" || mainCWL == "" || archivePath == "" {
			return fmt.Errorf("--name, --main, and --archive are required")
		}

		body := &bytes.Buffer{}
		w := multipart.NewWriter(body)
		_ = w.WriteField("wf_name", wfName)
		_ = w.WriteField("main_cwl", mainCWL)
		_ = w.WriteField("wf_filename", filepath.Base(archivePath))
		if workdir != "" {
			_ = w.WriteField("workdir", workdir)
		}

		if err := attachFile(w, "workflow_archive", archivePath); err != nil {
			return err
		}
		if yamlPath != "" {
			if err := attachFile(w, "yaml", yamlPath); err != nil {
				return err
			}
		}
		if err := w.Close(); err != nil {
			return err
		}

		resp, err := http.Post(wfmAddr+"/workflows", w.FormDataContentType(), body)
		if err != nil {
			return fmt.Errorf("submit workflow: %w", err)
		}
		defer resp.Body.Close()

		out, _ := io.ReadAll(resp.Body)
		fmt.Println(string(out))
		if resp.StatusCode >= 300 {
			return fmt.Errorf("workflow manager rejected submission: %s", resp.Status)
		}
		return nil
	},
}

func attachFile(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

func init() {
	submitCmd.Flags().String("wfm-addr", "http://localhost:8080", "Workflow Manager base URL")
	submitCmd.Flags().String("name", "", "Workflow name")
	submitCmd.Flags().String("main", "", "Filename of the main workflow document inside --archive")
	submitCmd.Flags().String("archive", "", "Path to the workflow_archive tarball")
	submitCmd.Flags().String("inputs", "", "Path to a YAML inputs file")
	submitCmd.Flags().String("workdir", "", "Working directory on the Workflow Manager's host")
}
