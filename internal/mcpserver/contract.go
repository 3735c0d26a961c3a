package mcpserver

// StoreLayout describes how notes and folders are persisted, for LLM
// consumers reading the store through these tools.
const StoreLayout = `# Pagenote Store Layout

The store is a flat key/value map with JSON values.

## Keys

- ` + "`" + `folders` + "`" + `: the folder index, an object mapping folder key to ` + "`" + `{"name": "..."}` + "`" + `.
- every other key is a note id of the form ` + "`" + `note_<unix millis>` + "`" + `.

## Note

` + "```" + `json
{
  "id": "note_1700000000000",
  "title": "Reading notes",
  "content": "<p>HTML body</p>",
  "folder": "https://go.dev/doc",
  "lastModified": 1700000000000,
  "urls": ["https://go.dev/doc/effective_go"]
}
` + "```" + `

## Folders

- A folder key is derived from the page a note was written on:
  ` + "`" + `scheme://host/firstPathSegment` + "`" + `, or ` + "`" + `ClassCentral_<course>` + "`" + ` for Class Central classrooms.
- A folder exists exactly as long as at least one note references it.
- ` + "`" + `all` + "`" + ` is a filter meaning every note. It is never stored.
- Renaming a folder changes its ` + "`" + `name` + "`" + ` only. The key notes reference never changes.

## Tools

- ` + "`" + `list_folders` + "`" + `: the folder index.
- ` + "`" + `list_notes` + "`" + `: notes of one folder (or all), newest first.
- ` + "`" + `read_note` + "`" + `: one note by id.
- ` + "`" + `rename_folder` + "`" + `: set a folder display name.
`
