package prompt

import (
	"bytes"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// shellLanguages are editor language identifiers whose context is redacted.
var shellLanguages = map[string]bool{
	"shellscript": true, "sh": true, "bash": true, "zsh": true, "ksh": true,
}

// IsShell reports whether lang names a shell dialect.
func IsShell(lang string) bool {
	return shellLanguages[strings.ToLower(lang)]
}

// safeVars are environment variables that are non-sensitive and useful for LLM context.
var safeVars = map[string]bool{
	"HOME": true, "USER": true, "PWD": true, "OLDPWD": true,
	"SHELL": true, "PATH": true, "LANG": true, "TERM": true,
	"EDITOR": true, "PAGER": true, "HOSTNAME": true, "LOGNAME": true,
	"TMPDIR": true, "XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true,
	"XDG_RUNTIME_DIR": true, "DISPLAY": true, "SHLVL": true,
	"COLUMNS": true, "LINES": true, "LC_ALL": true, "LC_CTYPE": true,
}

// specialParams are shell special parameters that should not be redacted.
var specialParams = map[string]bool{
	"?": true, "!": true, "#": true, "@": true, "*": true,
	"-": true, "$": true, "_": true,
	"0": true, "1": true, "2": true, "3": true, "4": true,
	"5": true, "6": true, "7": true, "8": true, "9": true,
}

// RedactShellContext redacts secrets from the complete lines around the
// cursor. The line the cursor sits on is left untouched in both halves so
// the model continues from exactly what the user sees.
func RedactShellContext(above, below string) (string, string) {
	if i := strings.LastIndexByte(above, '\n'); i >= 0 {
		above = redactLines(above[:i]) + above[i:]
	}
	if i := strings.IndexByte(below, '\n'); i >= 0 {
		below = below[:i+1] + redactLines(below[i+1:])
	}
	return above, below
}

func redactLines(block string) string {
	lines := strings.Split(block, "\n")
	for i, line := range lines {
		lines[i] = RedactLine(line)
	}
	return strings.Join(lines, "\n")
}

// RedactLine replaces sensitive variable references and assignment values
// in one line of shell. Safe variables (PATH, HOME, etc.), special
// parameters ($?, $!, etc.), indentation and lines without expansions or
// assignments are preserved.
func RedactLine(line string) string {
	if !strings.ContainsAny(line, "$=") {
		return line
	}
	body := strings.TrimLeft(line, " \t")
	indent := line[:len(line)-len(body)]
	if strings.HasPrefix(body, "#") {
		return line
	}

	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(true))
	prog, err := parser.Parse(strings.NewReader(body), "")
	if err != nil {
		return indent + regexRedact(body)
	}

	syntax.Walk(prog, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.ParamExp:
			if n.Param != nil && !safeVars[n.Param.Value] && !specialParams[n.Param.Value] {
				n.Param.Value = "REDACTED"
			}
		case *syntax.Assign:
			if n.Name != nil && !safeVars[n.Name.Value] && n.Value != nil {
				n.Value.Parts = []syntax.WordPart{&syntax.Lit{Value: "***"}}
			}
		}
		return true
	})

	var buf bytes.Buffer
	printer := syntax.NewPrinter(syntax.Indent(0))
	if err := printer.Print(&buf, prog); err != nil {
		return indent + regexRedact(body)
	}
	return indent + strings.TrimRight(buf.String(), "\n")
}

var (
	reBraceVar  = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	reSimpleVar = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	reAssign    = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)=(\S+)`)
)

// regexRedact is a fallback for lines that fail to parse on their own,
// such as the opening line of an if or a heredoc.
func regexRedact(line string) string {
	line = reBraceVar.ReplaceAllStringFunc(line, func(m string) string {
		name := reBraceVar.FindStringSubmatch(m)[1]
		if safeVars[name] || specialParams[name] {
			return m
		}
		return "${REDACTED}"
	})

	line = reSimpleVar.ReplaceAllStringFunc(line, func(m string) string {
		name := reSimpleVar.FindStringSubmatch(m)[1]
		if name == "REDACTED" || safeVars[name] || specialParams[name] {
			return m
		}
		return "$REDACTED"
	})

	return reAssign.ReplaceAllStringFunc(line, func(m string) string {
		name := reAssign.FindStringSubmatch(m)[1]
		if safeVars[name] {
			return m
		}
		return name + "=***"
	})
}
