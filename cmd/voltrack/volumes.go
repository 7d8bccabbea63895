package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"voltrack/internal/actions"
	"voltrack/internal/manager"
	"voltrack/internal/output"
	"voltrack/internal/volume"
)

var (
	listTracked bool
	listType    string
	listWide    bool
	listClone   bool
	noHeaders   bool
)

func init() {
	listCmd.Flags().BoolVar(&listTracked, "tracked", false, "only show tracked volumes")
	listCmd.Flags().StringVar(&listType, "type", "", "only show volumes of this type (primary, secondary, system, ...)")
	listCmd.Flags().BoolVar(&listWide, "wide", false, "show fingerprint and id columns")
	listCmd.Flags().BoolVar(&listClone, "clone-capable", false, "only show volumes that support block cloning")
	listCmd.Flags().BoolVar(&noHeaders, "no-headers", false, "omit table headers")
}

func jsonInput(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printVolumes(cmd *cobra.Command, vols []*volume.Volume) error {
	f, err := output.NewFormatter(output.Options{
		Format:    output.Format(outputFormat),
		NoHeaders: noHeaders,
		Wide:      listWide,
	})
	if err != nil {
		return err
	}
	s, err := f.FormatVolumeList(vols)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), s)
	return nil
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List detected volumes",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			out, err := a.dispatch(cmd.Context(), actions.KindList, actions.ListInput{
				TrackedOnly:  listTracked,
				Type:         listType,
				CloneCapable: listClone,
			})
			if err != nil {
				return err
			}
			return printVolumes(cmd, out.(actions.ListOutput).Volumes)
		})
	},
}

var trackCmd = &cobra.Command{
	Use:   "track <volume-id|fingerprint|path>",
	Short: "Track a volume in the library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			v, err := a.lookupVolume(args[0])
			if err != nil {
				return err
			}
			out, err := a.dispatch(cmd.Context(), actions.KindTrack, actions.TrackInput{VolumeID: v.ID})
			if err != nil {
				return err
			}
			tracked := out.(actions.TrackOutput).Volume
			if output.Format(outputFormat) != output.FormatTable {
				return printValue(cmd, tracked)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tracking %s (%s) in library %q\n", tracked.MountPath, tracked.Fingerprint.ShortID(), a.library.Name)
			return nil
		})
	},
}

var untrackCmd = &cobra.Command{
	Use:   "untrack <volume-id|fingerprint|path>",
	Short: "Stop tracking a volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			v, err := a.lookupVolume(args[0])
			if err != nil {
				return err
			}
			out, err := a.dispatch(cmd.Context(), actions.KindUntrack, actions.UntrackInput{VolumeID: v.ID})
			if err != nil {
				return err
			}
			if output.Format(outputFormat) != output.FormatTable {
				return printValue(cmd, out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Untracked %s\n", v.MountPath)
			return nil
		})
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <path>",
	Short: "Canonicalize a path and show the volume holding it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			out, err := a.dispatch(cmd.Context(), actions.KindResolve, actions.ResolveInput{Path: args[0]})
			if err != nil {
				return err
			}
			res := out.(actions.ResolveOutput)
			if output.Format(outputFormat) != output.FormatTable {
				return printValue(cmd, res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Path)
			return printVolumes(cmd, []*volume.Volume{res.Volume})
		})
	},
}

var sameStorageCmd = &cobra.Command{
	Use:   "same-storage <path> <path>",
	Short: "Report whether two paths live on the same physical storage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			same := a.manager.SamePhysicalStorage(cmd.Context(), args[0], args[1])
			if output.Format(outputFormat) != output.FormatTable {
				return printValue(cmd, map[string]bool{"same_storage": same})
			}
			if same {
				fmt.Fprintln(cmd.OutOrStdout(), "same physical storage")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "different storage")
			}
			return nil
		})
	},
}

var copyStrategyCmd = &cobra.Command{
	Use:   "copy-strategy <source> <destination>",
	Short: "Show how a copy between two paths would be performed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			out, err := a.dispatch(cmd.Context(), actions.KindCopyStrategy, actions.CopyStrategyInput{
				Source:      args[0],
				Destination: args[1],
			})
			if err != nil {
				return err
			}
			plan := out.(manager.CopyPlan)
			if output.Format(outputFormat) != output.FormatTable {
				return printValue(cmd, plan)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", plan.Strategy, plan.Method)
			return nil
		})
	},
}
