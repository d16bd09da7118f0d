package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/pboyd/swizzle"
	"github.com/pboyd/swizzle/objrt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type stressOptions struct {
	redefinitions int
	workers       int
	iterations    int
	seed          uint64
}

var stressOpts stressOptions

func (o stressOptions) validate() error {
	var errs []error
	if o.redefinitions < 1 {
		errs = append(errs, fmt.Errorf("--redefinitions must be at least 1, got %d", o.redefinitions))
	}
	if o.workers < 1 {
		errs = append(errs, fmt.Errorf("--workers must be at least 1, got %d", o.workers))
	}
	if o.iterations < 0 {
		errs = append(errs, fmt.Errorf("--iterations must not be negative, got %d", o.iterations))
	}
	return errors.Join(errs...)
}

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Race redefinitions of one method and check the runtime stays consistent",
	Args:  cobra.NoArgs,
	RunE:  runStress,
}

func init() {
	f := stressCmd.Flags()
	f.IntVarP(&stressOpts.redefinitions, "redefinitions", "n", 16, "number of redefinitions of the method")
	f.IntVarP(&stressOpts.workers, "workers", "g", 8, "number of goroutines")
	f.IntVarP(&stressOpts.iterations, "iterations", "i", 10000, "operations per goroutine")
	f.Uint64Var(&stressOpts.seed, "seed", 0, "random seed, 0 picks one")
}

var errInconsistent = errors.New("inconsistent state")

func runStress(cmd *cobra.Command, _ []string) error {
	o := stressOpts
	if err := o.validate(); err != nil {
		return err
	}
	if o.seed == 0 {
		o.seed = uint64(time.Now().UnixNano())
	}
	log := logger.With(zap.Uint64("seed", o.seed))

	rt := objrt.New(objrt.WithLogger(logger.Named("objrt")))
	counter, err := rt.Define("Counter", "")
	if err != nil {
		return err
	}
	err = counter.AddMethod("value", func(self any, args ...any) (any, error) {
		return -1, nil
	})
	if err != nil {
		return err
	}

	target := swizzle.Target{Class: counter, Selector: "value"}
	original := rt.Implementation(target)

	rs := make([]*swizzle.Redefinition, o.redefinitions)
	owners := make(map[*swizzle.Imp]int, o.redefinitions)
	for i := range rs {
		r, err := swizzle.New(rt, target, objrt.NewImp(func(self any, args ...any) (any, error) {
			return i, nil
		}), swizzle.WithLogger(logger.Named("swizzle")))
		if err != nil {
			return err
		}
		rs[i] = r
		owners[r.Replacement()] = i
	}
	defer func() {
		for _, r := range rs {
			r.Close()
		}
	}()

	// check is only exact once the workers have stopped.
	check := func() error {
		imp := rt.Implementation(target)
		if imp == original {
			return nil
		}
		i, ok := owners[imp]
		if !ok {
			return fmt.Errorf("%w: unknown implementation %v", errInconsistent, imp)
		}
		if !rs[i].UsingRedefinition() {
			return fmt.Errorf("%w: redefinition %d installed but not started", errInconsistent, i)
		}
		if cur, ok := swizzle.Current(rt, target); !ok || cur != rs[i] {
			return fmt.Errorf("%w: redefinition %d installed but not current", errInconsistent, i)
		}
		return nil
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(cmd.Context())
	for w := 0; w < o.workers; w++ {
		g.Go(func() error {
			return stressWorker(ctx, rt, rs, owners, original, rand.New(rand.NewPCG(o.seed, uint64(w))), o.iterations)
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("stress failed", zap.Error(err))
		return err
	}

	started := 0
	for _, r := range rs {
		if r.UsingRedefinition() {
			started++
		}
	}
	if started > 1 {
		err = fmt.Errorf("%w: %d redefinitions started", errInconsistent, started)
	} else {
		err = check()
	}
	if err != nil {
		log.Error("stress failed", zap.Error(err))
		return err
	}

	log.Info("stress passed",
		zap.Int("redefinitions", o.redefinitions),
		zap.Int("workers", o.workers),
		zap.Int("iterations", o.iterations),
		zap.Duration("elapsed", time.Since(start)))
	fmt.Fprintf(os.Stdout, "ok: %d operations\n", o.workers*o.iterations)
	return nil
}

func stressWorker(ctx context.Context, rt *objrt.Runtime, rs []*swizzle.Redefinition, owners map[*swizzle.Imp]int, original *swizzle.Imp, rnd *rand.Rand, iterations int) error {
	target := rs[0].Target()
	obj := target.Class.(*objrt.Class).New()

	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		r := rs[rnd.IntN(len(rs))]
		switch n := rnd.IntN(100); {
		case n < 50:
			r.Start()
		case n < 95:
			r.Stop()
		default:
			r.Close()
		}

		imp := rt.Implementation(target)
		if _, ok := owners[imp]; !ok && imp != original {
			return fmt.Errorf("%w: unknown implementation %v", errInconsistent, imp)
		}

		v, err := objrt.Send(obj, target.Selector)
		if err != nil {
			return err
		}
		if n := v.(int); n < -1 || n >= len(rs) {
			return fmt.Errorf("%w: method returned %d", errInconsistent, n)
		}
	}
	return nil
}
