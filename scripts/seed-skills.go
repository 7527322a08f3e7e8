// Seeds a demo skill catalog for trying out the skillet CLI:
//
//	go run ./scripts/seed-skills.go [target-dir]
//
// The target defaults to ./.skillet/skills. Existing skills are left
// untouched.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

type seedFile struct {
	path    string
	content string
}

var seeds = []seedFile{
	{
		path: "terraform-modules/SKILL.md",
		content: `---
name: terraform-modules
description: Use when provisioning infrastructure with Terraform. Use if reviewing HCL plans or module structure.
tags:
  - terraform
  - infrastructure
category: stack
---

# Terraform Modules

Structure modules with explicit variables, pinned provider versions and
a flat output surface.

See the [state migration guide](references/state-migration.md) when
moving resources between backends.
`,
	},
	{
		path: "terraform-modules/references/state-migration.md",
		content: `# State Migration

Always back up the state file before a move. Use 'terraform state mv'
for renames within one backend and 'terraform init -migrate-state' for
backend changes.
`,
	},
	{
		path: "code-review/SKILL.md",
		content: `---
name: code-review
description: Use when reviewing pull requests, diffs or patches.
tags:
  - review
  - quality
category: meta
---

# Code Review

Read the whole diff before commenting. Prefer questions over verdicts
for anything that is a matter of taste.
`,
	},
	{
		path: "payments-domain/SKILL.md",
		content: `---
name: payments-domain
description: Use when working on billing, invoicing or payment flows.
tags:
  - payments
  - billing
category: domain
---

# Payments Domain

Amounts are integer cents, never floats. Every state transition on an
invoice is appended to its ledger, not updated in place.
`,
	},
}

func main() {
	target := "./.skillet/skills"
	if len(os.Args) > 1 {
		target = os.Args[1]
	}

	if err := seed(target); err != nil {
		fmt.Fprintf(os.Stderr, "Seeding failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded demo catalog at %s\n", target)
}

func seed(target string) error {
	for _, file := range seeds {
		path := filepath.Join(target, filepath.FromSlash(file.path))

		if _, err := os.Stat(path); err == nil {
			fmt.Printf("Skipping %s, already exists\n", path)
			continue
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.Wrapf(err, "failed to create %s", filepath.Dir(path))
		}
		if err := os.WriteFile(path, []byte(file.content), 0o644); err != nil {
			return errors.Wrapf(err, "failed to write %s", path)
		}
		fmt.Printf("Wrote %s\n", path)
	}
	return nil
}
