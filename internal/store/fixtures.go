package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Chord is a chords row.
type Chord struct {
	Name         string
	Root         string
	Type         string
	Formula      string
	Intervals    []string
	Category     string
	Description  string
	Progressions []string
	Difficulty   int
	Tags         []string
}

// Scale is a scales row.
type Scale struct {
	Name          string
	Type          string
	Parent        string
	Degree        int
	Formula       string
	Intervals     []string
	Category      string
	Compatibility []string
	Character     string
	Description   string
	Difficulty    int
	Tags          []string
}

// Technique is a techniques row.
type Technique struct {
	Name          string
	Category      string
	Subcategory   string
	Description   string
	Difficulty    int
	Practitioners []string
	Tags          []string
}

// Standard is a jazz_standards row.
type Standard struct {
	Title      string
	Composer   string
	Year       int
	Key        string
	Form       string
	Measures   int
	Concepts   []string
	Scales     []string
	Difficulty int
	Tags       []string
}

// HistoryEntry is a guitar_history row.
type HistoryEntry struct {
	Title       string
	Era         string
	Category    string
	Summary     string
	Content     string
	KeyFigures  []string
	Instruments []string
	Materials   []string
	Tags        []string
}

// Fixtures is a bundle of knowledge rows to load.
type Fixtures struct {
	Chords     []Chord
	Scales     []Scale
	Techniques []Technique
	Standards  []Standard
	History    []HistoryEntry
}

// Seed loads the built-in fixtures. Rows already present are skipped.
func (db *DB) Seed(ctx context.Context) (map[string]int, error) {
	return db.Load(ctx, DefaultFixtures())
}

// Load inserts fixtures in one transaction and returns rows added per table.
func (db *DB) Load(ctx context.Context, f Fixtures) (map[string]int, error) {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	defer tx.Rollback()

	added := map[string]int{}
	exec := func(table, q string, args ...any) error {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("seed %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		added[table] += int(n)
		return nil
	}

	for _, c := range f.Chords {
		if err := exec("chords", `INSERT OR IGNORE INTO chords
			(name, root, chord_type, formula, intervals, category, description, common_progressions, difficulty, tags)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.Name, c.Root, c.Type, c.Formula, list(c.Intervals), c.Category, c.Description,
			list(c.Progressions), c.Difficulty, list(c.Tags)); err != nil {
			return nil, err
		}
	}
	for _, s := range f.Scales {
		if err := exec("scales", `INSERT OR IGNORE INTO scales
			(name, scale_type, parent_scale, degree, formula, intervals, category, chord_compatibility, character, description, difficulty, tags)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.Name, s.Type, s.Parent, s.Degree, s.Formula, list(s.Intervals), s.Category,
			list(s.Compatibility), s.Character, s.Description, s.Difficulty, list(s.Tags)); err != nil {
			return nil, err
		}
	}
	for _, t := range f.Techniques {
		if err := exec("techniques", `INSERT OR IGNORE INTO techniques
			(name, category, subcategory, description, difficulty, famous_practitioners, tags)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.Name, t.Category, t.Subcategory, t.Description, t.Difficulty, list(t.Practitioners), list(t.Tags)); err != nil {
			return nil, err
		}
	}
	for _, s := range f.Standards {
		if err := exec("jazz_standards", `INSERT OR IGNORE INTO jazz_standards
			(title, composer, year, "key", form, measures, key_concepts, suggested_scales, difficulty, tags)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.Title, s.Composer, s.Year, s.Key, s.Form, s.Measures, list(s.Concepts), list(s.Scales),
			s.Difficulty, list(s.Tags)); err != nil {
			return nil, err
		}
	}
	for _, h := range f.History {
		if err := exec("guitar_history", `INSERT INTO guitar_history
			(title, era, category, summary, content, key_figures, instruments, materials, tags)
			SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
			WHERE NOT EXISTS (SELECT 1 FROM guitar_history WHERE title = ?)`,
			h.Title, h.Era, h.Category, h.Summary, h.Content, list(h.KeyFigures), list(h.Instruments),
			list(h.Materials), list(h.Tags), h.Title); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("seed commit: %w", err)
	}
	db.log.Info().Interface("added", added).Msg("fixtures loaded")
	return added, nil
}

// list serializes a string slice the way list columns store it.
func list(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// DefaultFixtures is the built-in starter knowledge set.
func DefaultFixtures() Fixtures {
	return Fixtures{
		Chords: []Chord{
			{Name: "Cmaj7", Root: "C", Type: "maj7", Formula: "1 3 5 7", Intervals: []string{"1", "3", "5", "7"},
				Category: "jazz", Description: "Major seventh; the tonic sound of a major ii-V-I.",
				Progressions: []string{"ii-V-I", "I-vi-ii-V"}, Difficulty: 1, Tags: []string{"major", "tonic"}},
			{Name: "Dm7", Root: "D", Type: "min7", Formula: "1 b3 5 b7", Intervals: []string{"1", "b3", "5", "b7"},
				Category: "jazz", Description: "Minor seventh; the ii chord in C major.",
				Progressions: []string{"ii-V-I"}, Difficulty: 1, Tags: []string{"minor", "subdominant"}},
			{Name: "G7", Root: "G", Type: "dom7", Formula: "1 3 5 b7", Intervals: []string{"1", "3", "5", "b7"},
				Category: "jazz", Description: "Dominant seventh; resolves to C.",
				Progressions: []string{"ii-V-I", "blues"}, Difficulty: 1, Tags: []string{"dominant"}},
			{Name: "G7b9", Root: "G", Type: "dom7b9", Formula: "1 3 5 b7 b9", Intervals: []string{"1", "3", "5", "b7", "b9"},
				Category: "altered", Description: "Dominant with a flat nine; strong pull to a minor or major tonic.",
				Progressions: []string{"ii-V-i"}, Difficulty: 3, Tags: []string{"dominant", "b9", "altered"}},
			{Name: "A7b9", Root: "A", Type: "dom7b9", Formula: "1 3 5 b7 b9", Intervals: []string{"1", "3", "5", "b7", "b9"},
				Category: "altered", Description: "Secondary dominant to Dm7 in C major.",
				Progressions: []string{"I-VI-ii-V"}, Difficulty: 3, Tags: []string{"dominant", "b9", "secondary"}},
			{Name: "E7alt", Root: "E", Type: "alt", Formula: "1 3 b7 b9 #9 b13", Intervals: []string{"1", "3", "b7", "b9", "#9", "b13"},
				Category: "altered", Description: "Altered dominant built from the super locrian scale.",
				Progressions: []string{"ii-V-i"}, Difficulty: 4, Tags: []string{"dominant", "b9", "#9", "altered"}},
			{Name: "Bm7b5", Root: "B", Type: "m7b5", Formula: "1 b3 b5 b7", Intervals: []string{"1", "b3", "b5", "b7"},
				Category: "jazz", Description: "Half-diminished; the ii chord of a minor ii-V-i.",
				Progressions: []string{"ii-V-i"}, Difficulty: 2, Tags: []string{"half-diminished", "minor"}},
			{Name: "C6/9", Root: "C", Type: "6/9", Formula: "1 3 5 6 9", Intervals: []string{"1", "3", "5", "6", "9"},
				Category: "jazz", Description: "Major sixth with added ninth; a bright closing chord.",
				Progressions: []string{"ii-V-I"}, Difficulty: 2, Tags: []string{"major", "tonic"}},
		},
		Scales: []Scale{
			{Name: "Dorian", Type: "mode", Parent: "Major", Degree: 2, Formula: "1 2 b3 4 5 6 b7",
				Intervals: []string{"1", "2", "b3", "4", "5", "6", "b7"}, Category: "major_modes",
				Compatibility: []string{"min7", "min6"}, Character: "minor with a bright sixth",
				Description: "Second mode of the major scale; the default sound over a ii chord.", Difficulty: 2,
				Tags: []string{"minor", "mode"}},
			{Name: "Mixolydian", Type: "mode", Parent: "Major", Degree: 5, Formula: "1 2 3 4 5 6 b7",
				Intervals: []string{"1", "2", "3", "4", "5", "6", "b7"}, Category: "major_modes",
				Compatibility: []string{"dom7", "dom9", "dom13"}, Character: "bluesy major",
				Description: "Fifth mode of the major scale; fits unaltered dominants.", Difficulty: 2,
				Tags: []string{"dominant", "mode"}},
			{Name: "Altered", Type: "mode", Parent: "Melodic Minor", Degree: 7, Formula: "1 b2 #2 3 b5 #5 b7",
				Intervals: []string{"1", "b9", "#9", "3", "b5", "b13", "b7"}, Category: "melodic_minor_modes",
				Compatibility: []string{"alt", "dom7b9", "dom7#9"}, Character: "maximum tension",
				Description: "Seventh mode of melodic minor; every tension altered.", Difficulty: 4,
				Tags: []string{"dominant", "b9", "altered"}},
			{Name: "Half-Whole Diminished", Type: "symmetric", Formula: "1 b2 #2 3 #4 5 6 b7",
				Intervals: []string{"1", "b9", "#9", "3", "#11", "5", "13", "b7"}, Category: "symmetric",
				Compatibility: []string{"dom7b9", "dom13b9"}, Character: "symmetrical, angular",
				Description: "Alternating half and whole steps; fits dominant b9 chords.", Difficulty: 4,
				Tags: []string{"dominant", "b9", "symmetric"}},
			{Name: "Bebop Dominant", Type: "bebop", Parent: "Mixolydian", Formula: "1 2 3 4 5 6 b7 7",
				Intervals: []string{"1", "2", "3", "4", "5", "6", "b7", "7"}, Category: "bebop",
				Compatibility: []string{"dom7"}, Character: "swinging, chromatic",
				Description: "Mixolydian plus a passing major seventh so chord tones land on beats.", Difficulty: 3,
				Tags: []string{"dominant", "bebop"}},
			{Name: "Minor Pentatonic", Type: "pentatonic", Formula: "1 b3 4 5 b7",
				Intervals: []string{"1", "b3", "4", "5", "b7"}, Category: "pentatonic",
				Compatibility: []string{"min7", "dom7"}, Character: "bluesy, open",
				Description: "Five-note minor scale; the blues player's home base.", Difficulty: 1,
				Tags: []string{"minor", "blues"}},
		},
		Techniques: []Technique{
			{Name: "Alternate Picking", Category: "picking", Subcategory: "alternate",
				Description: "Strict down-up picking for even eighth-note lines.", Difficulty: 2,
				Practitioners: []string{"Pat Martino", "George Benson"}, Tags: []string{"picking", "bebop"}},
			{Name: "Sweep Picking", Category: "picking", Subcategory: "sweep",
				Description: "One continuous pick stroke across adjacent strings for arpeggios.", Difficulty: 4,
				Practitioners: []string{"Frank Gambale"}, Tags: []string{"picking", "arpeggio"}},
			{Name: "Legato", Category: "fretting", Subcategory: "legato",
				Description: "Hammer-ons and pull-offs for smooth, horn-like phrasing.", Difficulty: 3,
				Practitioners: []string{"Allan Holdsworth"}, Tags: []string{"fretting", "phrasing"}},
			{Name: "Chord Melody", Category: "harmony", Subcategory: "solo guitar",
				Description: "Harmonizing a melody with the melody note on top of each voicing.", Difficulty: 4,
				Practitioners: []string{"Joe Pass", "Ted Greene"}, Tags: []string{"harmony", "voicing"}},
			{Name: "Freddie Green Comping", Category: "harmony", Subcategory: "comping",
				Description: "Three-note shell voicings played four to the bar.", Difficulty: 2,
				Practitioners: []string{"Freddie Green"}, Tags: []string{"comping", "swing", "voicing"}},
		},
		Standards: []Standard{
			{Title: "Autumn Leaves", Composer: "Joseph Kosma", Year: 1945, Key: "G minor", Form: "AABC", Measures: 32,
				Concepts: []string{"ii-V-I", "ii-V-i", "relative major"}, Scales: []string{"Dorian", "Aeolian", "Altered"},
				Difficulty: 2, Tags: []string{"ballad", "beginner-standard"}},
			{Title: "All The Things You Are", Composer: "Jerome Kern", Year: 1939, Key: "Ab major", Form: "AABA", Measures: 36,
				Concepts: []string{"ii-V-I", "key centers", "cycle of fourths"}, Scales: []string{"Ionian", "Dorian", "Mixolydian"},
				Difficulty: 3, Tags: []string{"modulation"}},
			{Title: "Blue Bossa", Composer: "Kenny Dorham", Year: 1963, Key: "C minor", Form: "AB", Measures: 16,
				Concepts: []string{"ii-V-i", "modulation"}, Scales: []string{"Dorian", "Harmonic Minor"},
				Difficulty: 2, Tags: []string{"bossa", "latin"}},
			{Title: "Giant Steps", Composer: "John Coltrane", Year: 1960, Key: "B major", Form: "AB", Measures: 16,
				Concepts: []string{"Coltrane changes", "major thirds"}, Scales: []string{"Ionian", "Mixolydian"},
				Difficulty: 5, Tags: []string{"up-tempo", "b9"}},
			{Title: "Stella By Starlight", Composer: "Victor Young", Year: 1944, Key: "Bb major", Form: "ABCD", Measures: 32,
				Concepts: []string{"ii-V-I", "half-diminished", "b9 dominants"}, Scales: []string{"Locrian", "Altered"},
				Difficulty: 4, Tags: []string{"ballad", "b9"}},
		},
		History: []HistoryEntry{
			{Title: "Antonio de Torres and the modern classical guitar", Era: "1850s-1890s", Category: "luthier",
				Summary: "Torres set the body size and fan bracing of the modern classical guitar.",
				Content: "Antonio de Torres Jurado enlarged the lower bout and standardized seven-strut fan bracing, proving with a papier-mache bodied guitar that the top drives the tone.",
				KeyFigures: []string{"Antonio de Torres"}, Instruments: []string{"classical guitar"},
				Materials: []string{"spruce", "rosewood", "cypress"}, Tags: []string{"bracing", "classical"}},
			{Title: "C.F. Martin and X-bracing", Era: "1840s-1930s", Category: "innovation",
				Summary: "Martin's X-bracing made steel strings and the dreadnought possible.",
				Content: "C.F. Martin developed X-bracing in the mid 1800s; it later let Martin guitars take steel string tension, and the 1931 dreadnought became the flat-top reference shape.",
				KeyFigures: []string{"C.F. Martin"}, Instruments: []string{"dreadnought", "flat-top"},
				Materials: []string{"spruce", "mahogany", "rosewood"}, Tags: []string{"bracing", "acoustic"}},
			{Title: "Lloyd Loar and the Gibson L-5", Era: "1920s", Category: "instrument",
				Summary: "The L-5 brought f-holes and a carved top to the archtop guitar.",
				Content: "Working at Gibson, Lloyd Loar signed the 1922 L-5, whose carved spruce top, f-holes and adjustable truss rod defined the jazz archtop.",
				KeyFigures: []string{"Lloyd Loar", "Orville Gibson"}, Instruments: []string{"L-5", "archtop"},
				Materials: []string{"spruce", "maple", "ebony"}, Tags: []string{"archtop", "jazz"}},
			{Title: "Leo Fender and the solid body", Era: "1950s", Category: "instrument",
				Summary: "The Telecaster and Stratocaster made the solid body guitar a factory product.",
				Content: "Leo Fender's bolt-on neck Telecaster (1950) and contoured Stratocaster (1954) were built for repair and mass production with single-coil pickups.",
				KeyFigures: []string{"Leo Fender"}, Instruments: []string{"Telecaster", "Stratocaster"},
				Materials: []string{"ash", "alder", "maple"}, Tags: []string{"solid body", "single-coil"}},
			{Title: "Seth Lover's humbucker", Era: "1955-1957", Category: "innovation",
				Summary: "Two reverse-wound coils cancelled hum and gave the Les Paul its tone.",
				Content: "Seth Lover patented the humbucking pickup at Gibson under Ted McCarty; its twin coils cancel 60-cycle hum and gave a thicker output than the P-90.",
				KeyFigures: []string{"Seth Lover", "Ted McCarty"}, Instruments: []string{"Les Paul", "ES-335"},
				Materials: []string{"alnico", "copper"}, Tags: []string{"pickup", "humbucker"}},
			{Title: "D'Angelico and D'Aquisto archtops", Era: "1932-1995", Category: "luthier",
				Summary: "New York builders who hand-carved the most prized jazz archtops.",
				Content: "John D'Angelico built archtops by hand in Manhattan from 1932; his apprentice James D'Aquisto carried the shop forward with more radical designs until 1995.",
				KeyFigures: []string{"John D'Angelico", "James D'Aquisto"}, Instruments: []string{"New Yorker", "archtop"},
				Materials: []string{"spruce", "maple"}, Tags: []string{"archtop", "jazz", "workshop"}},
		},
	}
}

