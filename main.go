package main

import (
	"os"

	"concierge-automation/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		os.Exit(1)
	}
}
