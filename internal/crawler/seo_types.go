package crawler

// StructuredData summarizes the machine-readable markup found on a page.
type StructuredData struct {
	HasStructuredData bool     `json:"has_structured_data"`
	Types             []string `json:"types"`
	JSONLDCount       int      `json:"json_ld_count"`
	MicrodataCount    int      `json:"microdata_count"`
	RDFaCount         int      `json:"rdfa_count"`
}

// SEOAudit is the on-page audit derived from one HTML document.
type SEOAudit struct {
	TitleExists   bool   `json:"title_exists"`
	Title         string `json:"title"`
	TitleLength   int    `json:"title_length"`
	TitleTooShort bool   `json:"title_too_short"`
	TitleTooLong  bool   `json:"title_too_long"`

	MetaDescriptionExists   bool   `json:"meta_description_exists"`
	MetaDescription         string `json:"meta_description"`
	MetaDescriptionLength   int    `json:"meta_description_length"`
	MetaDescriptionTooShort bool   `json:"meta_description_too_short"`
	MetaDescriptionTooLong  bool   `json:"meta_description_too_long"`
	MetaKeywords            string `json:"meta_keywords,omitempty"`

	H1Count       int  `json:"h1_count"`
	H2Count       int  `json:"h2_count"`
	H3Count       int  `json:"h3_count"`
	H4Count       int  `json:"h4_count"`
	H5Count       int  `json:"h5_count"`
	H6Count       int  `json:"h6_count"`
	MissingH1     bool `json:"missing_h1"`
	HasMultipleH1 bool `json:"has_multiple_h1"`

	HasCanonical bool   `json:"has_canonical"`
	CanonicalURL string `json:"canonical_url,omitempty"`
	RobotsMeta   string `json:"robots_meta,omitempty"`
	IsIndexable  bool   `json:"is_indexable"`
	IsFollowable bool   `json:"is_followable"`

	StructuredData StructuredData `json:"structured_data"`

	OpenGraph   map[string]string `json:"open_graph,omitempty"`
	TwitterCard map[string]string `json:"twitter_card,omitempty"`

	ImagesTotal        int  `json:"images_total"`
	ImagesMissingAlt   int  `json:"images_missing_alt"`
	ImagesMissingTitle int  `json:"images_missing_title"`
	ImagesOptimized    bool `json:"images_optimized"`

	InternalLinks int `json:"internal_links"`
	ExternalLinks int `json:"external_links"`
	NofollowLinks int `json:"nofollow_links"`
	BrokenLinks   int `json:"broken_links"`

	HasHTTPS    bool   `json:"has_https"`
	HasViewport bool   `json:"has_viewport"`
	HasCharset  bool   `json:"has_charset"`
	Charset     string `json:"charset,omitempty"`
	HasLang     bool   `json:"has_lang"`
	Lang        string `json:"lang,omitempty"`

	PageSizeBytes int   `json:"page_size_bytes"`
	LoadTimeMs    int64 `json:"load_time_ms"`
	WordCount     int   `json:"word_count"`

	SEOScore           int      `json:"seo_score"`
	PerformanceScore   int      `json:"performance_score"`
	AccessibilityScore int      `json:"accessibility_score"`
	Issues             []string `json:"issues"`
}
