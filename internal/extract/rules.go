package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/IshaanNene/AutoHarvest/internal/types"
)

// Block identifies which detail page text block a rule reads.
type Block int

const (
	SummaryBlock Block = iota
	SpecsBlock
)

// Normalizer turns the bounded raw value of a field into its canonical form.
// Returning ok=false hands the value to the default normalizer.
type Normalizer func(raw string) (v types.Value, ok bool)

// Rule binds a ledger column to a label in one of the detail page blocks.
type Rule struct {
	Column    string
	Label     string
	Block     Block
	Normalize Normalizer
}

// Labels as they appear on the detail pages.
const (
	LabelYear         = "Год"
	LabelMileage      = "Пробег"
	LabelTransmission = "КПП"
	LabelColor        = "Цвет"
	LabelDrive        = "Привод"
	LabelFuel         = "Тип топлива"
	LabelPower        = "Мощность"
	LabelAuction      = "Аукцион"
	LabelLot          = "Номер лота"
	LabelChinaPrice   = "Цена в Китае"
	LabelVolume       = "Объем"
	LabelBody         = "Кузов тип"
	LabelEmissions    = "Стандарты защиты окружающей среды"
	LabelEngine       = "Модель двигателя"
	LabelDisplacement = "Смещение"
	LabelGears        = "Количество передач"
	LabelTopSpeed     = "Максимальная скорость"
	LabelTank         = "Объем топливного бака"
	LabelPlate        = "Информация о номерном знаке"
)

// StopLabels bound a captured value: the value ends where the first of these
// (in this order, not by position) appears. The order matters and is part of
// the extraction contract.
var StopLabels = []string{
	LabelYear, LabelMileage, LabelTransmission, LabelColor, LabelDrive,
	LabelFuel, LabelPower, LabelAuction, LabelLot, LabelChinaPrice,
	LabelVolume, LabelBody, LabelEmissions, LabelEngine, LabelDisplacement,
	LabelGears, LabelTopSpeed, LabelTank, LabelPlate,
}

// DefaultRules is the field table for the auction detail pages.
func DefaultRules() []Rule {
	return []Rule{
		{Column: "year", Label: LabelYear, Block: SummaryBlock, Normalize: normalizeYear},
		{Column: "mileage", Label: LabelMileage, Block: SummaryBlock, Normalize: normalizeMileage},
		{Column: "transmission", Label: LabelTransmission, Block: SummaryBlock, Normalize: normalizeTransmission},
		{Column: "color", Label: LabelColor, Block: SummaryBlock, Normalize: normalizeColor},
		{Column: "drive_type", Label: LabelDrive, Block: SummaryBlock, Normalize: normalizeDrive},
		{Column: "fuel_type", Label: LabelFuel, Block: SummaryBlock, Normalize: normalizeFuel},
		{Column: "power", Label: LabelPower, Block: SummaryBlock, Normalize: normalizePower},
		{Column: "auction", Label: LabelAuction, Block: SummaryBlock, Normalize: normalizeAuction},
		{Column: "china_price", Label: LabelChinaPrice, Block: SummaryBlock, Normalize: normalizeChinaPrice},
		{Column: "engine_volume", Label: LabelVolume, Block: SummaryBlock, Normalize: normalizeVolume},
		{Column: "body_type", Label: LabelBody, Block: SpecsBlock, Normalize: normalizeBody},
		{Column: "environmental_standards", Label: LabelEmissions, Block: SpecsBlock, Normalize: normalizeEmissions},
		{Column: "engine", Label: LabelEngine, Block: SpecsBlock, Normalize: normalizeEngine},
		{Column: "gear_count", Label: LabelGears, Block: SpecsBlock, Normalize: normalizeGears},
	}
}

var (
	wordRe       = regexp.MustCompile(`^[\p{L}\p{N}_]+`)
	yearRe       = regexp.MustCompile(`\d{4}`)
	mileageRe    = regexp.MustCompile(`\d[\d \x{00A0}\x{202F}]*\s*км`)
	powerRe      = regexp.MustCompile(`\d+\s*л\.с\.`)
	volumeRe     = regexp.MustCompile(`\d+\s*см3|\d+[.,]\d*\s*L`)
	chinaPriceRe = regexp.MustCompile(`\d+[\s\d,]*\s*¥`)
	emissionsRe  = regexp.MustCompile(`(?i)Euro\s*[IVX\d\s]+`)
	digitsRe     = regexp.MustCompile(`\d+`)
	engineRe     = regexp.MustCompile(`(?i)^(.+?)(?:Смещение|$)`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

var bodyTypes = []string{
	"седан", "хэтчбек", "универсал", "внедорожник", "кроссовер",
	"купе", "кабриолет", "минивэн", "пикап", "лифтбек", "mpv",
}

func normalizeColor(s string) (types.Value, bool) {
	if m := wordRe.FindString(s); m != "" {
		return types.Value(m), true
	}
	return "", false
}

func normalizeYear(s string) (types.Value, bool) {
	if m := yearRe.FindString(s); m != "" {
		return types.Value(m), true
	}
	return "", false
}

func normalizeMileage(s string) (types.Value, bool) {
	if m := mileageRe.FindString(s); m != "" {
		return types.Value(m), true
	}
	return "", false
}

// normalizeTransmission maps Latin and Cyrillic gearbox forms onto AT, MT
// or CVT. Variator is checked first since "ВАРИАТОР" contains "АТ".
func normalizeTransmission(s string) (types.Value, bool) {
	upper := strings.ToUpper(s)
	switch {
	case strings.Contains(upper, "CVT"), strings.Contains(upper, "ВАРИАТОР"):
		return "CVT", true
	case strings.Contains(upper, "AT"), strings.Contains(upper, "АТ"), strings.Contains(upper, "АКПП"):
		return "AT", true
	case strings.Contains(upper, "MT"), strings.Contains(upper, "МТ"),
		strings.Contains(upper, "МКПП"), strings.Contains(upper, "МЕХАНИ"):
		return "MT", true
	}
	return "", false
}

func normalizeDrive(s string) (types.Value, bool) {
	upper := strings.ToUpper(s)
	switch {
	case strings.Contains(s, "Передний"), strings.Contains(upper, "FWD"):
		return "FWD", true
	case strings.Contains(s, "Задний"), strings.Contains(upper, "RWD"):
		return "RWD", true
	case strings.Contains(s, "Полный"), strings.Contains(upper, "4WD"), strings.Contains(upper, "AWD"):
		return "AWD", true
	}
	return "", false
}

func normalizeFuel(s string) (types.Value, bool) {
	switch {
	case strings.Contains(s, "Бензин"):
		return "Бензин", true
	case strings.Contains(s, "Дизел"):
		return "Дизель", true
	case strings.Contains(s, "Электр"):
		return "Электричество", true
	case strings.Contains(s, "Гибрид"):
		return "Гибрид", true
	}
	return "", false
}

func normalizePower(s string) (types.Value, bool) {
	if m := powerRe.FindString(s); m != "" {
		return types.Value(m), true
	}
	return "", false
}

func normalizeVolume(s string) (types.Value, bool) {
	if m := volumeRe.FindString(s); m != "" {
		return types.Value(m), true
	}
	return "", false
}

func normalizeChinaPrice(s string) (types.Value, bool) {
	if m := chinaPriceRe.FindString(s); m != "" {
		return types.Value(m), true
	}
	return "", false
}

func normalizeAuction(s string) (types.Value, bool) {
	house, _, _ := strings.Cut(s, LabelLot)
	return orNotFound(trimColons(house)), true
}

func normalizeEmissions(s string) (types.Value, bool) {
	m := emissionsRe.FindString(s)
	if m == "" {
		return types.NotFound, true
	}
	return types.Value(spaceRe.ReplaceAllString(strings.TrimSpace(m), " ")), true
}

func normalizeGears(s string) (types.Value, bool) {
	if m := digitsRe.FindString(s); m != "" {
		return types.Value(m), true
	}
	return types.NotFound, true
}

func normalizeBody(s string) (types.Value, bool) {
	lower := strings.ToLower(s)
	for _, kind := range bodyTypes {
		if strings.Contains(lower, kind) {
			return types.Value(kind), true
		}
	}
	if strings.Contains(lower, "автомобиль") {
		return "седан", true
	}
	if strings.Contains(lower, strings.ToLower(LabelPlate)) {
		return types.NotFound, true
	}
	return "", false
}

func normalizeEngine(s string) (types.Value, bool) {
	code := s
	if m := engineRe.FindStringSubmatch(s); m != nil {
		code = m[1]
	}
	code = strings.ReplaceAll(trimColons(code), ",", " ")
	if code == "-" {
		return types.NotFound, true
	}
	return orNotFound(code), true
}

// normalizeDefault keeps at most maxValueLen runes of the value.
func normalizeDefault(s string) types.Value {
	if utf8.RuneCountInString(s) > maxValueLen {
		s = string([]rune(s)[:maxValueLen])
	}
	return orNotFound(trimColons(s))
}

const maxValueLen = 50

func isColonOrSpace(r rune) bool {
	return r == ':' || r == '：' || unicode.IsSpace(r)
}

func trimColons(s string) string {
	return strings.TrimFunc(s, isColonOrSpace)
}

func orNotFound(s string) types.Value {
	if s == "" {
		return types.NotFound
	}
	return types.Value(s)
}
