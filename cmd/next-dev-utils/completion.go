package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wyattjoh/next-dev-utils/internal/config/version"
	"github.com/wyattjoh/next-dev-utils/internal/utils/security"
)

// completionScopeEnv set to "system" installs bash completion under
// /etc/bash_completion.d when that directory is writable.
const completionScopeEnv = "NEXT_DEV_UTILS_COMPLETION_SCOPE"

func createInstallCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install-completion",
		Short: "Install shell completion script",
		Long: `Install shell completion script for Bash, Zsh, Fish, or PowerShell.
The shell is detected from $SHELL unless --shell is given.`,
		Args: cobra.NoArgs,
		RunE: executeInstallCompletion,
	}
	cmd.Flags().String("shell", "", "Shell type (bash, zsh, fish, powershell)")
	cmd.Flags().Bool("force", false, "Overwrite an existing completion file")
	return cmd
}

func executeInstallCompletion(cmd *cobra.Command, _ []string) error {
	shellType, _ := cmd.Flags().GetString("shell")
	force, _ := cmd.Flags().GetBool("force")

	if shellType == "" {
		detected, err := detectShell()
		if err != nil {
			return err
		}
		shellType = detected
	}

	var buf bytes.Buffer
	root := cmd.Root()
	var err error
	switch shellType {
	case "bash":
		err = root.GenBashCompletionV2(&buf, true)
	case "zsh":
		err = root.GenZshCompletion(&buf)
	case "fish":
		err = root.GenFishCompletion(&buf, true)
	case "powershell":
		err = root.GenPowerShellCompletionWithDesc(&buf)
	default:
		return fmt.Errorf("unsupported shell type: %s", shellType)
	}
	if err != nil {
		return fmt.Errorf("error generating %s completion: %w", shellType, err)
	}

	targetPath, err := completionPath(shellType)
	if err != nil {
		return err
	}
	if _, err := os.Stat(targetPath); err == nil && !force {
		return fmt.Errorf("completion file already exists at %s. Use --force to overwrite", targetPath)
	}
	if err := security.SafeWriteFile(targetPath, buf.Bytes(), 0o600, security.RejectSymlinks); err != nil {
		return fmt.Errorf("could not write completion file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Shell completion installed for %s at %s\n", shellType, targetPath)
	return nil
}

func detectShell() (string, error) {
	shellEnv := os.Getenv("SHELL")
	if shellEnv == "" {
		if os.Getenv("PSModulePath") != "" {
			return "powershell", nil
		}
		return "", fmt.Errorf("could not detect shell. Please specify with --shell flag")
	}
	for _, name := range []string{"bash", "zsh", "fish"} {
		if strings.Contains(filepath.Base(shellEnv), name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("unsupported shell: %s. Please specify shell with --shell flag", shellEnv)
}

func completionPath(shellType string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}

	name := version.Toolname
	var dir, file string
	switch shellType {
	case "bash":
		dir, file = filepath.Join(homeDir, ".bash_completion.d"), name+".bash"
		if os.Getenv(completionScopeEnv) == "system" && dirWritable("/etc/bash_completion.d") {
			dir = "/etc/bash_completion.d"
		}
	case "zsh":
		dir, file = filepath.Join(homeDir, ".zsh", "completion"), "_"+name
	case "fish":
		dir, file = filepath.Join(homeDir, ".config", "fish", "completions"), name+".fish"
	case "powershell":
		dir, file = filepath.Join(homeDir, "Documents", "WindowsPowerShell"), name+"-completion.ps1"
	default:
		return "", fmt.Errorf("unsupported shell type: %s", shellType)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("could not create directory %s: %w", dir, err)
	}
	return filepath.Join(dir, file), nil
}

func dirWritable(p string) bool {
	tf, err := os.CreateTemp(p, ".write-check-*")
	if err != nil {
		return false
	}
	tf.Close()
	_ = os.Remove(tf.Name())
	return true
}
