package ratelimit_test

import (
	"context"
	"fmt"

	"opdflow/internal/ratelimit"
)

func ExampleNewPacer() {
	// Two reloads per second with a burst of three.
	p := ratelimit.NewPacer(2, 3)

	for range 3 {
		if err := p.Wait(context.Background()); err != nil {
			fmt.Println("cancelled")
			return
		}
	}
	fmt.Println("burst of 3 reloads allowed")
	// Output: burst of 3 reloads allowed
}

func ExampleHostPacers_For() {
	pacers := ratelimit.NewHostPacers(1, 1)

	home := pacers.For("https://sp.example.com/home")
	ca := pacers.For("https://sp.example.com/ca/123")
	admin := pacers.For("https://mrkun.example.com/admin")

	fmt.Println(home == ca, home == admin)
	// Output: true false
}
