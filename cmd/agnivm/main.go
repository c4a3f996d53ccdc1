// Command agnivm is the Agni virtual machine command-line front end: it
// loads a compiled executable, wires up a small demo host-function
// library, and runs it to completion.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/kiplingw/agni-go/vm"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{Use: "agnivm", Short: "Run Agni executables"}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var hostName string
	var hostMajor, hostMinor uint8
	var verbose bool

	cmd := &cobra.Command{
		Use:   "run <out.age>",
		Short: "Load and run an executable until every thread stops",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(args[0], hostName, hostMajor, hostMinor, verbose)
		},
	}
	cmd.Flags().StringVar(&hostName, "host", "agnivm", "host identity presented to scripts")
	cmd.Flags().Uint8Var(&hostMajor, "host-major", 1, "host major version")
	cmd.Flags().Uint8Var(&hostMinor, "host-minor", 0, "host minor version")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log runtime faults")
	return cmd
}

func runScript(path, hostName string, hostMajor, hostMinor uint8, verbose bool) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("agnivm: %w", err)
	}

	log := logrus.New()
	if !verbose {
		log.SetLevel(logrus.ErrorLevel)
	}

	m := vm.New(hostName, hostMajor, hostMinor, log)
	registerDemoHostLibrary(m)

	h, status := m.LoadScript(image)
	if status != vm.Ok {
		return fmt.Errorf("agnivm: %s: load failed: %s", path, status)
	}
	if !m.ResetScript(h) || !m.StartScript(h) {
		return fmt.Errorf("agnivm: %s: failed to start", path)
	}

	m.RunScripts(vm.RunIndefinitely)
	return nil
}

// registerDemoHostLibrary wires up the small built-in library every
// agnivm-run script can call into: Print writes its argument to stdout,
// and Millis returns elapsed wall-clock time since the host started, for
// scripts that want to measure their own run time. Rand is already a
// VM opcode and isn't duplicated here.
func registerDemoHostLibrary(m *vm.VM) {
	started := time.Now()

	m.RegisterHostFunction(vm.GlobalVisibility, "Print", func(v *vm.VM, h vm.Handle) error {
		s, ok := v.GetParameterAsString(h, 0)
		if !ok {
			s = "?"
		}
		fmt.Println(s)
		v.ReturnVoidFromHost(h, 1)
		return nil
	})

	m.RegisterHostFunction(vm.GlobalVisibility, "Millis", func(v *vm.VM, h vm.Handle) error {
		elapsed := time.Since(started).Milliseconds()
		v.ReturnIntFromHost(h, 0, int32(elapsed))
		return nil
	})
}
