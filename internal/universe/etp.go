package universe

import (
	"regexp"
	"strings"
)

// etpSymbols is the embedded exclusion set of common exchange-traded
// products. Snapshot name matching catches the long tail.
var etpSymbols = map[string]struct{}{
	"SPY": {}, "IVV": {}, "VOO": {}, "VTI": {}, "QQQ": {}, "QQQM": {},
	"DIA": {}, "IWM": {}, "IWB": {}, "IWF": {}, "IWD": {}, "MDY": {},
	"RSP": {}, "SCHD": {}, "SCHX": {}, "SCHB": {}, "SCHG": {}, "SPLG": {},
	"VUG": {}, "VTV": {}, "VB": {}, "VO": {}, "VV": {}, "VEA": {},
	"VWO": {}, "VXUS": {}, "IEFA": {}, "IEMG": {}, "EFA": {}, "EEM": {},
	"ACWI": {}, "VT": {}, "BND": {}, "AGG": {}, "BNDX": {}, "TLT": {},
	"IEF": {}, "SHY": {}, "SHV": {}, "BIL": {}, "LQD": {}, "HYG": {},
	"JNK": {}, "MUB": {}, "TIP": {}, "VTIP": {}, "GLD": {}, "IAU": {},
	"SLV": {}, "GDX": {}, "GDXJ": {}, "USO": {}, "UNG": {}, "DBC": {},
	"PDBC": {}, "XLE": {}, "XLF": {}, "XLK": {}, "XLV": {}, "XLI": {},
	"XLP": {}, "XLY": {}, "XLU": {}, "XLB": {}, "XLRE": {}, "XLC": {},
	"XBI": {}, "IBB": {}, "SMH": {}, "SOXX": {}, "KRE": {}, "KBE": {},
	"XOP": {}, "OIH": {}, "ARKK": {}, "ARKG": {}, "ARKW": {}, "ITOT": {},
	"TQQQ": {}, "SQQQ": {}, "SPXU": {}, "UPRO": {}, "SSO": {}, "SDS": {},
	"UVXY": {}, "VXX": {}, "SVXY": {}, "SOXL": {}, "SOXS": {}, "LABU": {},
	"LABD": {}, "TNA": {}, "TZA": {}, "FAS": {}, "FAZ": {}, "EMB": {},
	"VNQ": {}, "IYR": {}, "VIG": {}, "VYM": {}, "DVY": {}, "SDY": {},
	"NOBL": {}, "MTUM": {}, "QUAL": {}, "USMV": {}, "VLUE": {}, "JEPI": {},
	"JEPQ": {}, "QYLD": {}, "XYLD": {}, "BITO": {}, "IBIT": {}, "FBTC": {},
	"GBTC": {}, "ETHE": {},
}

// fundNamePattern flags issuer names that identify funds and trusts
// regardless of symbol.
var fundNamePattern = regexp.MustCompile(`(?i)\b(ETF|ETN|FUND|TRUST|INDEX|SHARES|SPDR|ISHARES|VANGUARD|PROSHARES|DIREXION)\b`)

// IsETP reports whether symbol/name identifies an exchange-traded product
// or fund. Such rows never reach scoring.
func IsETP(symbol, name string) bool {
	if _, ok := etpSymbols[strings.ToUpper(symbol)]; ok {
		return true
	}
	return name != "" && fundNamePattern.MatchString(name)
}
