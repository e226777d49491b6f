// meshtool is a CLI utility for importing and inspecting mesh files and
// MPAK archives.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type command func(args []string, stdout io.Writer) error

var commands = map[string]command{
	"info":       cmdInfo,
	"tree":       cmdTree,
	"joints":     cmdJoints,
	"config":     cmdConfig,
	"pak-list":   cmdPakList,
	"pak-create": cmdPakCreate,
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	name := args[0]
	switch name {
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	case "ls":
		name = "pak-list"
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
	if err := cmd(args[1:], stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `meshtool - mesh import and inspection utility

Usage:
  meshtool <command> [options] <args>

Commands:
  info <model>                     Import a model and show a summary
  tree <model>                     Show the prefab entity hierarchy
  joints <model>                   Show skin joints and their resolution
  config [-save]                   Print the effective configuration
  pak-list <file.mpak> [pattern]   List archive files
  pak-create <file.mpak> <dir>     Pack a directory into an archive

Model commands accept:
  -config <file>   -dir <dir>   -pak <file.mpak>   -encoding <charset>
  -gpu-bones <n>   -texcoord2   -debug

Examples:
  meshtool info -dir assets models/hero.dae
  meshtool tree -pak base.mpak models/hero.smesh
  meshtool pak-create base.mpak assets`)
}
