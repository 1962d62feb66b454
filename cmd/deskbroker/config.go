package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"deskbroker/internal/toolclient"
)

func defaultToolServerConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tool-servers.json"
	}
	return filepath.Join(home, ".config", "deskbroker", "tool-servers.json")
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or initialize the tool-server manifest",
	}
	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigInitCommand())
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the tool-server manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := toolclient.NewConfigLoader()
			config, err := loader.LoadFromPath(path)
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(config, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", defaultToolServerConfigPath(), "path to tool-servers.json")
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an empty tool-server manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			loader := toolclient.NewConfigLoader()
			config := &toolclient.Config{MCPServers: map[string]toolclient.ServerConfig{}}
			if err := loader.SaveToPath(path, config); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", defaultToolServerConfigPath(), "path to tool-servers.json")
	return cmd
}
