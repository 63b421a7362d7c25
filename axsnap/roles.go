package axsnap

// implicitRoles maps HTML tags to the role they carry without an explicit
// role attribute. Tags absent from this table (and from skippedTags) are
// "generic" and get pruned unless something else makes them interesting.
var implicitRoles = map[string]string{
	"a":          "link",
	"article":    "article",
	"aside":      "complementary",
	"blockquote": "blockquote",
	"button":     "button",
	"caption":    "caption",
	"code":       "code",
	"del":        "deletion",
	"details":    "group",
	"dialog":     "dialog",
	"em":         "emphasis",
	"fieldset":   "group",
	"figure":     "figure",
	"footer":     "contentinfo",
	"form":       "form",
	"h1":         "heading",
	"h2":         "heading",
	"h3":         "heading",
	"h4":         "heading",
	"h5":         "heading",
	"h6":         "heading",
	"header":     "banner",
	"hr":         "separator",
	"img":        "img",
	"ins":        "insertion",
	"li":         "listitem",
	"main":       "main",
	"mark":       "mark",
	"menu":       "list",
	"meter":      "meter",
	"nav":        "navigation",
	"ol":         "list",
	"optgroup":   "group",
	"option":     "option",
	"output":     "status",
	"p":          "paragraph",
	"progress":   "progressbar",
	"section":    "region",
	"select":     "combobox",
	"strong":     "strong",
	"sub":        "subscript",
	"summary":    "button",
	"sup":        "superscript",
	"table":      "table",
	"tbody":      "rowgroup",
	"td":         "cell",
	"textarea":   "textbox",
	"tfoot":      "rowgroup",
	"th":         "columnheader",
	"thead":      "rowgroup",
	"time":       "time",
	"tr":         "row",
	"ul":         "list",
}

// inputRoles maps <input type=...> to roles. Unlisted types are "textbox".
var inputRoles = map[string]string{
	"button":   "button",
	"checkbox": "checkbox",
	"image":    "button",
	"number":   "spinbutton",
	"radio":    "radio",
	"range":    "slider",
	"reset":    "button",
	"search":   "searchbox",
	"submit":   "button",
}

// nameFromContent lists roles that take their accessible name from their own
// rendered text. Beyond the roles a strict accessibility implementation
// allows (headings, links, buttons, cells, options, tabs, ...), it includes
// the inline/semantic text roles so automation callers see readable names on
// prose nodes. Intentional deviation, not an oversight.
var nameFromContent = map[string]bool{
	"blockquote":       true,
	"button":           true,
	"caption":          true,
	"cell":             true,
	"checkbox":         true,
	"code":             true,
	"columnheader":     true,
	"deletion":         true,
	"emphasis":         true,
	"heading":          true,
	"insertion":        true,
	"link":             true,
	"listitem":         true,
	"mark":             true,
	"menuitem":         true,
	"menuitemcheckbox": true,
	"menuitemradio":    true,
	"option":           true,
	"paragraph":        true,
	"radio":            true,
	"rowheader":        true,
	"strong":           true,
	"subscript":        true,
	"superscript":      true,
	"switch":           true,
	"tab":              true,
	"time":             true,
	"tooltip":          true,
	"treeitem":         true,
}

// formControlTags are tags eligible for <label> association.
var formControlTags = map[string]bool{
	"input":    true,
	"meter":    true,
	"output":   true,
	"progress": true,
	"select":   true,
	"textarea": true,
}

// rangeRoles are roles whose current value is surfaced on the node.
var rangeRoles = map[string]bool{
	"meter":       true,
	"progressbar": true,
	"slider":      true,
	"spinbutton":  true,
}

// skippedTags are dropped entirely, subtree included.
var skippedTags = map[string]bool{
	"base":     true,
	"head":     true,
	"link":     true,
	"meta":     true,
	"noscript": true,
	"script":   true,
	"style":    true,
	"template": true,
	"title":    true,
}
