package main

import (
	"log"

	"auxrewards/services/kpirewardd"
)

func main() {
	if err := kpirewardd.Main(); err != nil {
		log.Fatalf("kpirewardd: %v", err)
	}
}
