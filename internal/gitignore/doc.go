// Package gitignore matches paths against .gitignore files.
//
// Patterns are translated to doublestar globs:
//
//	*.log      -> **/*.log      (unanchored, any depth)
//	/build     -> build         (anchored to the file's directory)
//	docs/tmp/  -> docs/tmp      (directory only)
//	!keep.log  -> negation, last matching rule wins
//
// A path is ignored when it, or any of its parent directories, is matched.
//
//	m := gitignore.New()
//	_ = m.AddFromFile("/proj/.gitignore", "")
//	_ = m.AddFromFile("/proj/docs/.gitignore", "docs")
//	m.Match("docs/draft.md", false)
package gitignore
