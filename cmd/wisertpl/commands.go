package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wiserhq/templates/internal/branch"
	"github.com/wiserhq/templates/internal/config"
	"github.com/wiserhq/templates/internal/types"
)

var (
	publishEnv     string
	deployBranchID int64
	deployUser     string
	treeParentID   int64
	getVersionFlag int
)

var publishCmd = &cobra.Command{
	Use:   "publish <template-id> <version>",
	Short: "Promote a template version into an environment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		templateID, version, err := parseIDVersion(args[0], args[1])
		if err != nil {
			return err
		}
		env, err := types.ParseEnvironment(publishEnv)
		if err != nil {
			return err
		}

		svc, _, err := newService(rootCtx)
		if err != nil {
			return err
		}
		res, err := svc.Publish(rootCtx, templateID, version, env)
		if err != nil {
			return err
		}
		if err := reportResult(res); err != nil {
			return err
		}
		if !jsonOutput {
			fmt.Printf("Published template %d version %d to %s\n", templateID, version, env)
			if res.ModelObject != nil && res.ModelObject.NewVersion > 0 {
				fmt.Printf("Created protective version %d\n", res.ModelObject.NewVersion)
			}
		}
		return nil
	},
}

var deployBranchCmd = &cobra.Command{
	Use:   "deploy-branch <template-id>...",
	Short: "Copy templates into a branch database and publish them live there",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, a := range args {
			id, err := strconv.ParseInt(a, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid template id %q", a)
			}
			ids = append(ids, id)
		}

		svc, cfg, err := newService(rootCtx)
		if err != nil {
			return err
		}
		user := deployUser
		if user == "" {
			user = cfg.Actor
		}
		res, err := svc.DeployToBranch(rootCtx, branch.Identity{Username: user}, ids, deployBranchID)
		if err != nil {
			return err
		}
		if err := reportResult(res); err != nil {
			return err
		}
		if !jsonOutput {
			fmt.Printf("Deployed %d template(s) to branch %d\n", len(ids), deployBranchID)
		}
		return nil
	},
}

var syncObjectsCmd = &cobra.Command{
	Use:   "sync-objects <template-id>...",
	Short: "Re-push the live version of database-object templates into the schema",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, a := range args {
			id, err := strconv.ParseInt(a, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid template id %q", a)
			}
			ids = append(ids, id)
		}

		svc, _, err := newService(rootCtx)
		if err != nil {
			return err
		}
		res, err := svc.SyncObjects(rootCtx, ids)
		if err != nil {
			return err
		}
		if err := reportResult(res); err != nil {
			return err
		}
		if !jsonOutput {
			for _, r := range res.ModelObject {
				switch {
				case r.Synced:
					fmt.Printf("%6d  v%-3d synchronized\n", r.TemplateID, r.Version)
				case r.Version > 0:
					fmt.Printf("%6d  v%-3d failed: %s\n", r.TemplateID, r.Version, r.Message)
				default:
					fmt.Printf("%6d  skipped: %s\n", r.TemplateID, r.Message)
				}
			}
		}
		return nil
	},
}

var convertLegacyCmd = &cobra.Command{
	Use:   "convert-legacy",
	Short: "Run the one-shot easy_* to wiser_* conversion",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := newService(rootCtx)
		if err != nil {
			return err
		}
		res, err := svc.ConvertLegacy(rootCtx)
		if err != nil {
			return err
		}
		if err := reportResult(res); err != nil {
			return err
		}
		if !jsonOutput {
			fmt.Println("Legacy conversion completed")
		}
		return nil
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "List templates under a directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := newService(rootCtx)
		if err != nil {
			return err
		}
		res, err := svc.Tree(rootCtx, treeParentID)
		if err != nil {
			return err
		}
		if err := reportResult(res); err != nil {
			return err
		}
		if !jsonOutput {
			for _, m := range res.ModelObject {
				marker := " "
				if m.HasChildren {
					marker = "+"
				}
				fmt.Printf("%s %6d  v%-3d %-9s %s\n", marker, m.TemplateID, m.LatestVersion, m.Type, m.Name)
			}
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search template names and bodies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := newService(rootCtx)
		if err != nil {
			return err
		}
		res, err := svc.Search(rootCtx, args[0])
		if err != nil {
			return err
		}
		if err := reportResult(res); err != nil {
			return err
		}
		if !jsonOutput {
			for _, m := range res.ModelObject {
				fmt.Printf("%6d  v%-3d %-9s %s\n", m.TemplateID, m.LatestVersion, m.Type, m.Name)
			}
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <template-id>",
	Short: "Show a template version (latest by default)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		templateID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid template id %q", args[0])
		}
		svc, _, err := newService(rootCtx)
		if err != nil {
			return err
		}
		res, err := svc.GetTemplate(rootCtx, templateID, getVersionFlag)
		if err != nil {
			return err
		}
		if err := reportResult(res); err != nil {
			return err
		}
		if !jsonOutput {
			t := res.ModelObject
			fmt.Printf("Template %d (%s) version %d: %s\n", t.TemplateID, t.Type, t.Version, t.Name)
			fmt.Println(t.EditorValue)
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "config-init",
	Short: "Write a starter wiser.yaml to the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := config.Starter()
		if err != nil {
			return err
		}
		if _, err := os.Stat("wiser.yaml"); err == nil {
			return fmt.Errorf("wiser.yaml already exists, refusing to overwrite")
		}
		if err := os.WriteFile("wiser.yaml", out, 0o644); err != nil {
			return fmt.Errorf("failed to write wiser.yaml: %w", err)
		}
		fmt.Println("Wrote wiser.yaml")
		return nil
	},
}

func parseIDVersion(idArg, versionArg string) (int64, int, error) {
	templateID, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid template id %q", idArg)
	}
	version, err := strconv.Atoi(versionArg)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid version %q", versionArg)
	}
	return templateID, version, nil
}

func init() {
	publishCmd.Flags().StringVar(&publishEnv, "env", "live", "Target environment (development|test|acceptance|live)")
	deployBranchCmd.Flags().Int64Var(&deployBranchID, "branch", 0, "Target branch id")
	_ = deployBranchCmd.MarkFlagRequired("branch")
	deployBranchCmd.Flags().StringVar(&deployUser, "user", "", "User deploying (default: actor)")
	treeCmd.Flags().Int64Var(&treeParentID, "parent", 0, "Parent directory id (0 = root)")
	showCmd.Flags().IntVar(&getVersionFlag, "version", 0, "Version to show (0 = latest)")

	rootCmd.AddCommand(publishCmd, deployBranchCmd, syncObjectsCmd, convertLegacyCmd, treeCmd, searchCmd, showCmd, configInitCmd)
}
