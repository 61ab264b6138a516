package asyncloader_test

import (
	"context"
	"errors"
	"fmt"
	"strings"

	asyncloader "github.com/Swind/go-async-loader"
)

// ExampleRun demonstrates a background computation applied on the owner.
func ExampleRun() {
	rt, _ := asyncloader.Open(asyncloader.Options{Workers: 2})

	var greeting string // owner-only

	_ = asyncloader.Run(rt, asyncloader.BackgroundOperation[string]{
		Name: "greet",
		Run: func(ctx context.Context) (string, error) {
			return strings.ToUpper("hello"), nil
		},
		Apply: func(ctx context.Context, s string) {
			greeting = s
		},
	})

	for rt.Busy() {
		_, _ = rt.Tick(context.Background())
	}
	fmt.Println(greeting)
	_ = rt.Close()

	// Output:
	// HELLO
}

// ExampleRun_error demonstrates the error path.
func ExampleRun_error() {
	rt, _ := asyncloader.Open(asyncloader.Options{Workers: 1})
	defer func() { _ = rt.Close() }()

	_ = asyncloader.Run(rt, asyncloader.BackgroundOperation[int]{
		Name: "fails",
		Run: func(ctx context.Context) (int, error) {
			return 0, errors.New("disk on fire")
		},
		OnError: func(ctx context.Context, err error) {
			fmt.Println("owner saw:", err)
		},
	})

	for rt.Busy() {
		_, _ = rt.Tick(context.Background())
	}

	// Output:
	// owner saw: disk on fire
}

// ExampleRuntime_Close demonstrates that Close finishes queued work.
func ExampleRuntime_Close() {
	rt, _ := asyncloader.Open(asyncloader.Options{Workers: 1})

	for i := 1; i <= 3; i++ {
		_ = rt.Submit(func(ctx context.Context) {
			rt.Complete(func(ctx context.Context) {
				fmt.Println("applied", i)
			})
		})
	}

	_ = rt.Close()
	fmt.Println(rt.Submit(func(ctx context.Context) {}))

	// Output:
	// applied 1
	// applied 2
	// applied 3
	// asyncloader: runtime is closed
}
