package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/abyssdigger/toolbox"
	"github.com/abyssdigger/toolbox/lgr"
	"github.com/abyssdigger/toolbox/task"
)

const (
	DEMO_MODULE = "Demo"
	DEMO_TASKS  = 10
)

func main() {
	if err := run(context.Background(), os.Stdout, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("toolboxdemo", flag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", "", "Path to an HCL config file (defaults are used when empty).")
	tasks := fs.Int("tasks", DEMO_TASKS, "Number of demo tasks to run.")
	threads := fs.Bool("threads", false, "Run tasks on pool workers instead of goroutine scopes.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tasks < 0 {
		return fmt.Errorf("-tasks must not be negative, got %d", *tasks)
	}

	cfg := toolbox.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = toolbox.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	cfg, err := cfg.ApplyEnv()
	if err != nil {
		return err
	}
	if *threads {
		cfg.Task.PreferCoroutines = false
	}
	cfg.Log.Modules = append(cfg.Log.Modules, DEMO_MODULE, lgr.LevelModule(DEMO_MODULE, lgr.LVL_WARN))

	tb, err := toolbox.New(ctx, cfg, toolbox.WithConsole(out))
	if err != nil {
		return err
	}
	defer tb.Close(context.Background())

	log := tb.Logger()
	log.Logf(DEMO_MODULE, "running %d tasks (prefer coroutines: %t)", *tasks, cfg.Task.PreferCoroutines)

	jobs := make([]*task.Job, 0, *tasks)
	for i := range *tasks {
		job, err := tb.Tasks().IO(fmt.Sprintf("demo#%d", i+1), task.Delay(time.Duration(i)*time.Millisecond, func(context.Context) error {
			if i%4 == 3 {
				return fmt.Errorf("task %d gave up", i+1)
			}
			return nil
		}))
		if err != nil {
			log.Warn(DEMO_MODULE, err.Error())
			continue
		}
		jobs = append(jobs, job)
	}
	for _, job := range jobs {
		<-job.Done()
	}

	done := make(chan struct{})
	tb.Tasks().PostDelayed(func() {
		log.Log(DEMO_MODULE, "posted after the batch")
		close(done)
	}, 10*time.Millisecond)
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	fmt.Fprintln(out, tb.Stats())
	return tb.Close(ctx)
}
