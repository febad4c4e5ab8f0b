package eval

// Dispatch maps every built-in function name to its implementation.
// Keys are upper case, matching the parser's normalization of function
// identifiers.
var Dispatch = map[string]Fn{
	// Aggregates
	"SUM": fnSUM, "AVERAGE": fnAVERAGE, "AVG": fnAVERAGE, "COUNT": fnCOUNT, "COUNTA": fnCOUNTA,
	"COUNTBLANK": fnCOUNTBLANK, "MIN": fnMIN, "MAX": fnMAX, "MEDIAN": fnMEDIAN,
	"PRODUCT": fnPRODUCT, "STDEV": fnSTDEV, "STDEV.S": fnSTDEV, "STDEV.P": fnSTDEVP, "STDEVP": fnSTDEVP,
	"VAR": fnVAR, "VAR.S": fnVAR, "VAR.P": fnVARP, "VARP": fnVARP,

	// Conditional aggregates
	"SUMIF": fnSUMIF, "SUMIFS": fnSUMIFS, "COUNTIF": fnCOUNTIF, "COUNTIFS": fnCOUNTIFS,
	"AVERAGEIF": fnAVERAGEIF, "AVERAGEIFS": fnAVERAGEIFS, "MAXIFS": fnMAXIFS, "MINIFS": fnMINIFS,

	// Logic
	"IF": fnIF, "IFS": fnIFS, "AND": fnAND, "OR": fnOR, "NOT": fnNOT, "XOR": fnXOR,
	"IFERROR": fnIFERROR, "IFNA": fnIFNA, "SWITCH": fnSWITCH,

	// Information
	"ISERROR": fnISERROR, "ISNA": fnISNA, "ISBLANK": fnISBLANK, "ISNUMBER": fnISNUMBER,
	"ISTEXT": fnISTEXT, "ISLOGICAL": fnISLOGICAL, "ISEVEN": fnISEVEN, "ISODD": fnISODD,
	"ERROR.TYPE": fnERRORTYPE, "NA": fnNA,

	// Math/trig
	"ABS": fnABS, "ROUND": fnROUND, "ROUNDUP": fnROUNDUP, "ROUNDDOWN": fnROUNDDOWN,
	"CEILING": fnCEILING, "FLOOR": fnFLOOR, "TRUNC": fnTRUNC, "INT": fnINT, "MOD": fnMOD,
	"POWER": fnPOWER, "SQRT": fnSQRT, "EXP": fnEXP, "LN": fnLN, "LOG": fnLOG, "LOG10": fnLOG10,
	"PI": fnPI, "SIGN": fnSIGN, "SIN": fnSIN, "COS": fnCOS, "TAN": fnTAN,
	"ASIN": fnASIN, "ACOS": fnACOS, "ATAN": fnATAN, "ATAN2": fnATAN2,
	"RAND": fnRAND, "RANDBETWEEN": fnRANDBETWEEN, "DEGREES": fnDEGREES, "RADIANS": fnRADIANS,

	// Text
	"CONCATENATE": fnCONCATENATE, "CONCAT": fnCONCAT, "LEFT": fnLEFT, "RIGHT": fnRIGHT,
	"MID": fnMID, "LEN": fnLEN, "UPPER": fnUPPER, "LOWER": fnLOWER, "PROPER": fnPROPER,
	"TRIM": fnTRIM, "SUBSTITUTE": fnSUBSTITUTE, "REPLACE": fnREPLACE, "FIND": fnFIND,
	"SEARCH": fnSEARCH, "TEXT": fnTEXT, "VALUE": fnVALUE, "REPT": fnREPT, "EXACT": fnEXACT,
	"TEXTJOIN": fnTEXTJOIN,

	// Lookup
	"VLOOKUP": fnVLOOKUP, "HLOOKUP": fnHLOOKUP, "XLOOKUP": fnXLOOKUP, "INDEX": fnINDEX,
	"MATCH": fnMATCH, "CHOOSE": fnCHOOSE, "LOOKUP": fnLOOKUP,

	// Reference-returning and reference-info
	"INDIRECT": fnINDIRECT, "OFFSET": fnOFFSET,
	"ROW": fnROW, "COLUMN": fnCOLUMN, "ROWS": fnROWS, "COLUMNS": fnCOLUMNS,

	// Date/time
	"NOW": fnNOW, "TODAY": fnTODAY, "DATE": fnDATE, "YEAR": fnYEAR, "MONTH": fnMONTH,
	"DAY": fnDAY, "HOUR": fnHOUR, "MINUTE": fnMINUTE, "SECOND": fnSECOND, "WEEKDAY": fnWEEKDAY,
	"DATEVALUE": fnDATEVALUE, "EDATE": fnEDATE, "EOMONTH": fnEOMONTH, "DAYS": fnDAYS,
	"NETWORKDAYS": fnNETWORKDAYS, "DATEDIF": fnDATEDIF,

	// Array
	"FILTER": fnFILTER, "SORT": fnSORT, "SORTBY": fnSORTBY, "UNIQUE": fnUNIQUE,
	"SEQUENCE": fnSEQUENCE, "TRANSPOSE": fnTRANSPOSE,
}

// dispatch is the table evalCall reads. It is assigned from Dispatch in
// init because several built-ins call back into Eval, so a direct
// reference from evalCall to Dispatch would be an initialization cycle.
var dispatch map[string]Fn

func init() { dispatch = Dispatch }
