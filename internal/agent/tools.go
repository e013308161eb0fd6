package agent

import "fleetd/pkg/types"

// Tool names the model may propose. Anything else is refused.
const (
	toolReadFile      = "read_file"
	toolWriteFile     = "write_file"
	toolEditFile      = "edit_file"
	toolRunShell      = "run_shell"
	toolSearchFiles   = "search_files"
	toolListDirectory = "list_directory"
	toolTaskComplete  = "task_complete"
)

var catalog = []types.ToolSpec{
	{
		Name:        toolReadFile,
		Description: "Read a file and return its contents.",
		Args: []types.ToolArg{
			{Name: "path", Type: "string", Required: true, Description: "File path, relative to the working directory."},
		},
	},
	{
		Name:        toolWriteFile,
		Description: "Create or overwrite a file, creating parent directories as needed.",
		Args: []types.ToolArg{
			{Name: "path", Type: "string", Required: true, Description: "File path, relative to the working directory."},
			{Name: "content", Type: "string", Required: true, Description: "Full file content to write."},
		},
	},
	{
		Name:        toolEditFile,
		Description: "Replace the first occurrence of old_text in a file with new_text.",
		Args: []types.ToolArg{
			{Name: "path", Type: "string", Required: true, Description: "File path, relative to the working directory."},
			{Name: "old_text", Type: "string", Required: true, Description: "Exact text to replace; must occur in the file."},
			{Name: "new_text", Type: "string", Required: true, Description: "Replacement text; may be empty to delete."},
		},
	},
	{
		Name:        toolRunShell,
		Description: "Run a shell command in the working directory. Output is captured; execution is time-limited.",
		Args: []types.ToolArg{
			{Name: "command", Type: "string", Required: true, Description: "Command passed to sh -c."},
		},
	},
	{
		Name:        toolSearchFiles,
		Description: "Search file contents for a literal pattern and return matching lines.",
		Args: []types.ToolArg{
			{Name: "pattern", Type: "string", Required: true, Description: "Literal text to look for."},
			{Name: "path", Type: "string", Required: false, Description: "Directory to search; defaults to the working directory."},
		},
	},
	{
		Name:        toolListDirectory,
		Description: "List the entries of a directory.",
		Args: []types.ToolArg{
			{Name: "path", Type: "string", Required: false, Description: "Directory to list; defaults to the working directory."},
		},
	},
	{
		Name:        toolTaskComplete,
		Description: "Signal that the task is finished and end the run.",
		Args: []types.ToolArg{
			{Name: "final_answer", Type: "string", Required: false, Description: "Summary of the outcome."},
		},
	},
}

// Catalog returns the static tool allow-list with argument schemas.
func Catalog() []types.ToolSpec {
	return append([]types.ToolSpec(nil), catalog...)
}

type readFileArgs struct {
	Path string `json:"path"`
}

type writeFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type editFileArgs struct {
	Path    string `json:"path"`
	OldText string `json:"old_text"`
	NewText string `json:"new_text"`
}

type runShellArgs struct {
	Command string `json:"command"`
}

type searchFilesArgs struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
}

type listDirectoryArgs struct {
	Path string `json:"path"`
}

type taskCompleteArgs struct {
	FinalAnswer string `json:"final_answer"`
}
