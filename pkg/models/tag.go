package models

// TagCategory is the booru-style category of a tag. Display only.
type TagCategory string

const (
	TagCategoryGeneral   TagCategory = "general"
	TagCategoryArtist    TagCategory = "artist"
	TagCategoryCopyright TagCategory = "copyright"
	TagCategoryCharacter TagCategory = "character"
	TagCategoryMetadata  TagCategory = "metadata"
	TagCategoryCircle    TagCategory = "circle"
)

// danbooru numeric category codes.
var tagCategoryCodes = map[string]TagCategory{
	"0": TagCategoryGeneral,
	"1": TagCategoryArtist,
	"3": TagCategoryCopyright,
	"4": TagCategoryCharacter,
	"5": TagCategoryMetadata,
}

// ParseTagCategory maps a stored category name or numeric code, unknown values become general.
func ParseTagCategory(name string) TagCategory {
	if category, ok := tagCategoryCodes[name]; ok {
		return category
	}

	switch category := TagCategory(name); category {
	case TagCategoryArtist, TagCategoryCopyright, TagCategoryCharacter, TagCategoryMetadata, TagCategoryCircle:
		return category
	default:
		return TagCategoryGeneral
	}
}

// TagSuggestion is one autocomplete candidate. Ranking is done by the source.
type TagSuggestion struct {
	Name      string      `json:"name"`
	Category  TagCategory `json:"tag_type"`
	PostCount int64       `json:"post_count"`
}
