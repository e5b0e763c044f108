package main

import (
	"fmt"
	"os"

	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/terrascan/terrascan/internal/properties"
)

func printBanner() {
	bannercolor.Cyan(figure.NewFigure("TerraScan", "isometric1", true).String())
	fmt.Println()
}

func main() {
	if err := properties.LoadEnv("../../.env", "../.env", ".env"); err != nil {
		fmt.Printf("\033[33mNo .env file loaded: %s\033[0m\n", err.Error())
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
