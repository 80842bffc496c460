package finance

// Fallbacks when neither loaded nor built-in categories know a name.
const (
	DefaultIcon  = "tag"
	DefaultColor = "#808080"
)

var builtinIcons = map[string]string{
	"Food":          "food",
	"Transport":     "car",
	"Shopping":      "cart",
	"Bills":         "file-document",
	"Entertainment": "movie",
	"Healthcare":    "hospital",
	"Education":     "school",
	"Salary":        "cash",
	"Freelance":     "laptop",
	"Investment":    "chart-line",
	"Gift":          "gift",
	"Bonus":         "star",
	"Other":         "dots-horizontal",
	"Savings":       "piggy-bank",
	"Travel":        "airplane",
	"Vehicle":       "car",
	"Housing":       "home",
}

var builtinColors = map[string]string{
	"Food":          "#FF6B6B",
	"Transport":     "#4ECDC4",
	"Shopping":      "#45B7D1",
	"Bills":         "#FFA07A",
	"Entertainment": "#9B59B6",
	"Housing":       "#E67E22",
	"Vehicle":       "#95A5A6",
	"Travel":        "#3498DB",
	"Education":     "#F1C40F",
	"Savings":       "#FFD700",
	"Other":         "#808080",
}

// resolveIcon looks name up in the loaded categories, then the built-in
// table, then falls back to DefaultIcon. A loaded category with an empty
// icon does not shadow the built-in one.
func resolveIcon(name string, categories []Category) string {
	for _, c := range categories {
		if c.Name == name && c.Icon != "" {
			return c.Icon
		}
	}
	if icon, ok := builtinIcons[name]; ok {
		return icon
	}
	return DefaultIcon
}

// resolveColor is resolveIcon for colors.
func resolveColor(name string, categories []Category) string {
	for _, c := range categories {
		if c.Name == name && c.Color != "" {
			return c.Color
		}
	}
	if color, ok := builtinColors[name]; ok {
		return color
	}
	return DefaultColor
}
