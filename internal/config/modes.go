package config

// DefaultModes returns the built-in extraction modes used when the config
// file defines none. Each template carries exactly one {content} slot.
func DefaultModes() []ModeConfig {
	return []ModeConfig{
		{
			Name: "structured_data",
			Template: "Extract the main structured facts from the following web page as a JSON object. " +
				"Include the page title, author if present, publication date if present, and the central topic.\n\n{content}",
		},
		{
			Name: "content_summary",
			Template: "Write a concise summary, three sentences at most, of the following web page content:\n\n{content}",
		},
		{
			Name: "key_points",
			Template: "List the key points of the following web page content as a bullet list, most important first:\n\n{content}",
		},
		{
			Name: "entities",
			Template: "List the named entities, people, organizations, places and products, mentioned in the following content. " +
				"Group them by entity type.\n\n{content}",
		},
		{
			Name: "sentiment",
			Template: "Describe the overall sentiment of the following content in one word, positive, negative or neutral, " +
				"followed by a one-sentence justification:\n\n{content}",
		},
	}
}
