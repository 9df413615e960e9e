/*
Package envtree resolves a single flat environment for a project that lives
inside a tree of nested project directories.

# Quick Start

	root := hierarchy.NewProject("/src/monorepo", nil)
	api := root.Child("/src/monorepo/services/api")

	loader := envtree.New(nil)
	report, err := loader.Load(api)
	if err != nil {
		log.Fatal(err)
	}
	if err := report.Err(); err != nil {
		log.Printf("some environment files were skipped: %v", err)
	}

	env := loader.Store()
	mode := env.GetWithDefault("MODE", "dev")

For programs that just want the environment of the current directory:

	env := envtree.MustLoadDefault()

# How It Works

Load builds the store in layers:

 1. Every host environment variable is set first. This is the base layer.
 2. The path from the root project down to the requested project is computed.
 3. For each project on that path, root first, the files in its directory
    whose extension is "env" are parsed and every key/value pair is set.

Later layers win, so a child project overrides its parents and any file
overrides the host environment. Given this tree:

	/src/monorepo/
	├── app.env                 # MODE=prod  (applied 1st)
	└── services/api/
	    └── app.env             # MODE=dev   (applied 2nd)

loading services/api yields MODE=dev.

Files within one directory are applied in lexicographic order, so when two
files in the same directory set the same key the later name wins.

# File Format

Environment files use properties syntax: "#" and "!" comments, "key=value"
or "key:value" assignments, backslash continuation and escapes. Values are
literal; there is no ${VAR} expansion. See package propfile.

# Failures

A directory that cannot be listed or a file that cannot be read or parsed is
skipped as a whole, logged, and recorded in the Report. Load itself only
returns an error when the host environment cannot be read or the hierarchy
contains a cycle.

# Thread Safety

Load runs synchronously. The resulting store is safe for concurrent use.
*/
package envtree
