package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
)

// ghadapter runs a command that prints one JSON object and exposes its
// fields as GitHub Actions step outputs. The command's exit code is kept, so
// a failed comparison still publishes its message and attachment paths.
func main() {
	if len(os.Args) < 2 {
		os.Exit(1)
	}

	var args []string
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}

	cmd := exec.Command(os.Args[1], args...)
	cmd.Stdin = os.Stdin
	cmd.Stderr = os.Stderr

	exitCode := 0
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		exitCode = exitErr.ExitCode()
	}
	_, _ = os.Stdout.Write(output)

	var result map[string]any
	if err := json.Unmarshal(output, &result); err != nil {
		os.Exit(max(exitCode, 1))
	}

	if githubOutput := os.Getenv("GITHUB_OUTPUT"); githubOutput != "" {
		f, err := os.OpenFile(githubOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			os.Exit(1)
		}
		defer f.Close()

		if err := writeOutputs(f, result); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	os.Exit(exitCode)
}

// writeOutputs writes one output per key in sorted order. Strings are written
// as is and everything else as JSON; values spanning lines use the heredoc
// form GitHub requires.
func writeOutputs(w io.Writer, result map[string]any) error {
	keys := make([]string, 0, len(result))
	for key := range result {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value, ok := result[key].(string)
		if !ok {
			j, err := json.Marshal(result[key])
			if err != nil {
				return err
			}
			value = string(j)
		}

		if containsNewline(value) {
			if _, err := fmt.Fprintf(w, "%s<<EOF_%s\n%s\nEOF_%s\n", key, key, value, key); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%s=%s\n", key, value); err != nil {
			return err
		}
	}
	return nil
}

func containsNewline(s string) bool {
	for _, r := range s {
		if r == '\n' || r == '\r' {
			return true
		}
	}
	return false
}
