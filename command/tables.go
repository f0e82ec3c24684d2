package command

// Category is a class of commands with its own allowlist.
type Category string

// The different categories. A mnemonic may be part of more than one.
const (
	Movement      Category = "movement"
	Tool          Category = "tool"
	Configuration Category = "configuration"
	Information   Category = "information"
	Special       Category = "special"
	Operation     Category = "operation"
)

// Categories lists every category in the order they are consulted.
var Categories = []Category{
	Movement,
	Tool,
	Configuration,
	Information,
	Special,
	Operation,
}

func set(mnemonics ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(mnemonics))

	for _, m := range mnemonics {
		s[m] = struct{}{}
	}

	return s
}

// tables contain mnemonics in canonical form, see Canonical.
var tables = map[Category]map[string]struct{}{
	Movement: set(
		"G0", "G1", "G2", "G3", "G4",
		"G28", "G30", "G33",
		"G90", "G91", "G92",
	),
	Tool: set(
		"T", "S",
		"M3", "M4", "M5", "M6", "M7", "M8", "M9",
		"M12", "M13", "M14",
		"G43", "G44", "G49",
	),
	Configuration: set(
		"F",
		"G20", "G21",
		"G90", "G91", "G92",
		"M82", "M83",
		"M106", "M107",
		"M211",
		"M500", "M501", "M502",
	),
	Information: set(
		"M20", "M21", "M27", "M31", "M33",
		"M104", "M105",
		"M112",
		"M114", "M115", "M119",
		"M503",
	),
	Special: set(
		"M48",
		"G28", "G29",
		"M108",
		"M280",
		"M300", "M301", "M302", "M303",
	),
	Operation: set(
		"M0", "M1", "M2", "M6",
		"M30", "M60", "M98", "M99",
		"M112", "M120", "M121",
		"M226", "M227", "M228", "M229", "M230",
		"M240", "M245", "M246",
		"M600", "M601", "M602", "M603",
		"M605", "M606", "M607", "M608",
		"M650", "M651",
		"M701", "M702",
	),
}

// selectors are words that take their argument directly, like T0 or S1000.
var selectors = set("T", "S", "F")
