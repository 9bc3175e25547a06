package main

import (
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/microblog/internal/server"
)

func newOpenAPICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "openapi",
		Short:   "Print the HTTP API's OpenAPI document as YAML",
		GroupID: "query",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := server.SchemaYAML()
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(data)
			return err
		},
	}
}
