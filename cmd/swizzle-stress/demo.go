package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pboyd/swizzle"
	"github.com/pboyd/swizzle/objrt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Walk through chained redefinitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDemo(os.Stdout, logger)
	},
}

func runDemo(w io.Writer, log *zap.Logger) error {
	rt := objrt.New(objrt.WithLogger(log.Named("objrt")))
	greeter, err := rt.Define("Greeter", "")
	if err != nil {
		return err
	}
	err = greeter.AddMethod("greet", func(self any, args ...any) (any, error) {
		return "hello", nil
	})
	if err != nil {
		return err
	}

	obj := greeter.New()
	say := func(step string) error {
		v, err := objrt.Send(obj, "greet")
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%-28s %v\n", step+":", v)
		return nil
	}

	wrap := func(suffix string) swizzle.PolymorphicFunc {
		return swizzle.Polymorphic(func(sel string, original objrt.Method) objrt.Method {
			return func(self any, args ...any) (any, error) {
				v, err := original(self, args...)
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("%v%s", v, suffix), nil
			}
		})
	}

	opts := []swizzle.Option{swizzle.WithLogger(log.Named("swizzle"))}
	if err := say("original"); err != nil {
		return err
	}

	loud, err := swizzle.RedefineInstancesPolymorphic(rt, greeter, "greet", wrap("!"), opts...)
	if err != nil {
		return err
	}
	defer loud.Close()
	if err := say("first redefinition"); err != nil {
		return err
	}

	// Built from the first redefinition's replacement.
	louder, err := swizzle.RedefineInstancesPolymorphic(rt, greeter, "greet", wrap("!!"), opts...)
	if err != nil {
		return err
	}
	defer louder.Close()
	fmt.Fprintf(w, "%-28s %v\n", "first still started:", loud.UsingRedefinition())
	if err := say("second redefinition"); err != nil {
		return err
	}

	louder.Stop()
	if err := say("second stopped"); err != nil {
		return err
	}

	loud.Start()
	if err := say("first restarted"); err != nil {
		return err
	}
	loud.Close()
	return say("first closed")
}
