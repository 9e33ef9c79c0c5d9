package filter

// commandStart anchors a pattern at a position where the shell expects a
// command name: line start, after an operator or subshell opener, or after a
// wrapper such as env or exec.
const commandStart = `(?:^|[;&|({\x60!]\s*|\b(?:exec|env|nohup|time|nice|xargs|command|builtin|then|do|else)\s+)`

// commandEnd terminates a command name.
const commandEnd = `(?:\s|$|[;&|)])`

// DefaultRules returns the built in deny rules. Specific rules come first so
// the reported rule names what the user attempted.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "cd-parent",
			Category: CategoryTraversal,
			Pattern:  commandStart + `cd\s+(?:-[LPe@]+\s+)*\.\.(?:/|\s|$|[;&|)])`,
			Reason:   "leaving the workspace is not allowed",
		},
		{
			Name:     "cd-root",
			Category: CategoryAbsolute,
			Pattern:  commandStart + `cd\s+(?:-[LPe@]+\s+)*/`,
			Reason:   "changing to an absolute path is not allowed",
		},
		{
			Name:     "cd-home",
			Category: CategoryAbsolute,
			Pattern:  commandStart + `cd\s+(?:-[LPe@]+\s+)*~`,
			Reason:   "changing to a home directory is not allowed",
		},
		{
			Name:     "cd-substitution",
			Category: CategoryTraversal,
			Pattern:  commandStart + `cd\s+[^;&|]*(?:\$\(|\x60)`,
			Reason:   "changing to a computed directory is not allowed",
		},
		{
			Name:     "param-strip",
			Category: CategoryTraversal,
			Pattern:  `\$\{[^}]*[%#/]`,
			Reason:   "parameter expansions that rewrite paths are not allowed",
		},
		{
			Name:     "oldpwd",
			Category: CategoryTraversal,
			Pattern:  `\$\{?OLDPWD\b`,
			Reason:   "paths outside the workspace are not allowed",
		},
		{
			Name:     "dirname-expansion",
			Category: CategoryTraversal,
			Pattern:  `\bdirname\s+(?:-\S+\s+)*\$`,
			Reason:   "paths outside the workspace are not allowed",
		},
		{
			Name:     "symlink",
			Category: CategorySymlink,
			Pattern:  `\bln\s+(?:\S+\s+)*?(?:-[a-zA-Z]*s[a-zA-Z]*|--symbolic)` + commandEnd,
			Reason:   "creating symbolic links is not allowed",
		},
		{
			Name:     "privilege",
			Category: CategoryPrivilege,
			Pattern:  `\b(?:sudo|doas|pkexec|runuser|setpriv)\b`,
			Reason:   "privilege escalation is not allowed",
		},
		{
			Name:     "su",
			Category: CategoryPrivilege,
			Pattern:  commandStart + `su` + commandEnd,
			Reason:   "privilege escalation is not allowed",
		},
		{
			Name:     "mount",
			Category: CategoryPrivilege,
			Pattern:  commandStart + `u?mount` + commandEnd,
			Reason:   "mounting filesystems is not allowed",
		},
		{
			Name:     "namespace",
			Category: CategoryPrivilege,
			Pattern:  `\b(?:chroot|nsenter|unshare|pivot_root)\b`,
			Reason:   "changing root or namespaces is not allowed",
		},
		{
			Name:     "rm-root",
			Category: CategoryDestructive,
			Pattern:  `\brm\s+(?:-\S+\s+)*(?:--no-preserve-root\b|[/~]\*?(?:\s|$))`,
			Reason:   "removing the root or home directory is not allowed",
		},
		{
			Name:     "mkfs",
			Category: CategoryDestructive,
			Pattern:  `\bmkfs(?:\.[a-z0-9]+)?\b`,
			Reason:   "formatting filesystems is not allowed",
		},
		{
			Name:     "dd-device",
			Category: CategoryDestructive,
			Pattern:  `\bdd\b.*\bof=/dev/`,
			Reason:   "writing to devices is not allowed",
		},
		{
			Name:     "power",
			Category: CategoryDestructive,
			Pattern:  commandStart + `(?:shutdown|reboot|halt|poweroff|telinit)` + commandEnd + `|\binit\s+[06]\b`,
			Reason:   "power management is not allowed",
		},
		{
			Name:     "fork-bomb",
			Category: CategoryDestructive,
			Pattern:  `:\s*\(\s*\)\s*\{.*:\s*\|\s*:`,
			Reason:   "fork bombs are not allowed",
		},
		{
			Name:     "chmod-root",
			Category: CategoryDestructive,
			Pattern:  `\b(?:chmod|chown|chgrp)\b.*[\s=]/(?:\s|$)`,
			Reason:   "changing ownership or permissions of / is not allowed",
		},
		{
			Name:     "kill-all",
			Category: CategoryDestructive,
			Pattern:  `\bkill\s+(?:-\S+\s+)*-1(?:\s|$)|\bkillall5\b`,
			Reason:   "signalling every process is not allowed",
		},
		{
			Name:     "parent-traversal",
			Category: CategoryTraversal,
			Pattern:  `(?:^|[\s=:<>|;&(/])\.\.(?:/|\s|$|[;&|)])`,
			Reason:   "paths outside the workspace are not allowed",
		},
		{
			Name:     "absolute-path",
			Category: CategoryAbsolute,
			Pattern:  `(?:^|[\s=<>|;&(])[/~]`,
			Reason:   "absolute paths are not allowed, use paths relative to the workspace",
		},
	}
}

// DefaultProtectedPaths returns globs no token may name, wherever it appears.
func DefaultProtectedPaths() []string {
	return []string{
		"**/docker.sock",
		"**/.ssh",
		"**/.ssh/**",
		"**/.docker/config.json",
		"**/.ide-session",
	}
}
