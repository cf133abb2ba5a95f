package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cory-johannsen/npcfleet/internal/game/npc"
	"github.com/cory-johannsen/npcfleet/internal/game/resource"
)

func validateCmd() *cobra.Command {
	var manifest string
	cmd := &cobra.Command{
		Use:   "validate <templates-dir>",
		Short: "Check NPC template YAML and the assets it references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), args[0], manifest)
		},
	}
	cmd.Flags().StringVar(&manifest, "manifest", "", "resource manifest to check mesh, texture and model ids against")
	return cmd
}

type issue struct {
	template string
	message  string
	warning  bool
}

func runValidate(out io.Writer, dir, manifest string) error {
	templates, err := npc.LoadTemplates(dir)
	if err != nil {
		return err
	}

	var issues []issue
	builtin := make(map[string]bool)
	for _, t := range npc.DefaultTemplates() {
		builtin[t.ID] = true
	}
	seen := make(map[string]bool)
	for _, t := range templates {
		if seen[t.ID] {
			issues = append(issues, issue{template: t.ID, message: "duplicate template id"})
		}
		seen[t.ID] = true
		if builtin[t.ID] {
			issues = append(issues, issue{template: t.ID, message: "overrides a built-in template", warning: true})
		}
	}

	if manifest != "" {
		cache, err := resource.LoadManifest(manifest)
		if err != nil {
			return err
		}
		for _, t := range templates {
			for _, ref := range []struct {
				kind resource.Kind
				id   string
			}{
				{resource.KindMesh, t.MeshID},
				{resource.KindTexture, t.TextureID},
				{resource.KindModel, t.BehaviorModelID},
				{resource.KindModel, t.DialogueModelID},
			} {
				if ref.id != "" && !cache.Has(ref.kind, ref.id) {
					issues = append(issues, issue{template: t.ID, message: fmt.Sprintf("%s %q not in manifest", ref.kind, ref.id)})
				}
			}
		}
	}

	fmt.Fprintf(out, "%d templates in %s\n", len(templates), dir)
	if len(issues) == 0 {
		fmt.Fprintln(out, "No issues found.")
		return nil
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].template < issues[j].template })
	errs := 0
	for _, is := range issues {
		level := "error"
		if is.warning {
			level = "warn"
		} else {
			errs++
		}
		fmt.Fprintf(out, "  - [%s] %s: %s\n", level, is.template, is.message)
	}
	if errs > 0 {
		return fmt.Errorf("validation found %d errors", errs)
	}
	return nil
}
