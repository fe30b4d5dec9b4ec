package demangle

const (
	// StdlibModule is the name of the standard library module.
	StdlibModule = "Swift"
	// ObjCModule is the name of the fake module used to hold imported Objective-C things.
	ObjCModule = "__C"
	// ClangImporterModule holds synthesized ClangImporter declarations.
	ClangImporterModule = "__C_Synthesized"
)

type standardType struct {
	kind NodeKind
	name string
}

// standardTypes maps the letter following 'S' to a standard library type.
// ref: swift/include/swift/Demangling/StandardTypesMangling.def
var standardTypes = map[byte]standardType{
	'A': {KindStructure, "AutoreleasingUnsafeMutablePointer"},
	'a': {KindStructure, "Array"},
	'b': {KindStructure, "Bool"},
	'D': {KindStructure, "Dictionary"},
	'd': {KindStructure, "Double"},
	'f': {KindStructure, "Float"},
	'h': {KindStructure, "Set"},
	'I': {KindStructure, "DefaultIndices"},
	'i': {KindStructure, "Int"},
	'J': {KindStructure, "Character"},
	'N': {KindStructure, "ClosedRange"},
	'n': {KindStructure, "Range"},
	'O': {KindStructure, "ObjectIdentifier"},
	'P': {KindStructure, "UnsafePointer"},
	'p': {KindStructure, "UnsafeMutablePointer"},
	'R': {KindStructure, "UnsafeBufferPointer"},
	'r': {KindStructure, "UnsafeMutableBufferPointer"},
	'S': {KindStructure, "String"},
	's': {KindStructure, "Substring"},
	'u': {KindStructure, "UInt"},
	'V': {KindStructure, "UnsafeRawPointer"},
	'v': {KindStructure, "UnsafeMutableRawPointer"},
	'W': {KindStructure, "UnsafeRawBufferPointer"},
	'w': {KindStructure, "UnsafeMutableRawBufferPointer"},

	'q': {KindEnum, "Optional"},

	'B': {KindProtocol, "BinaryFloatingPoint"},
	'E': {KindProtocol, "Encodable"},
	'e': {KindProtocol, "Decodable"},
	'F': {KindProtocol, "FloatingPoint"},
	'G': {KindProtocol, "RandomNumberGenerator"},
	'H': {KindProtocol, "Hashable"},
	'j': {KindProtocol, "Numeric"},
	'K': {KindProtocol, "BidirectionalCollection"},
	'k': {KindProtocol, "RandomAccessCollection"},
	'L': {KindProtocol, "Comparable"},
	'l': {KindProtocol, "Collection"},
	'M': {KindProtocol, "MutableCollection"},
	'm': {KindProtocol, "RangeReplaceableCollection"},
	'Q': {KindProtocol, "Equatable"},
	'T': {KindProtocol, "Sequence"},
	't': {KindProtocol, "IteratorProtocol"},
	'U': {KindProtocol, "UnsignedInteger"},
	'X': {KindProtocol, "RangeExpression"},
	'x': {KindProtocol, "Strideable"},
	'Y': {KindProtocol, "RawRepresentable"},
	'y': {KindProtocol, "StringProtocol"},
	'Z': {KindProtocol, "SignedInteger"},
	'z': {KindProtocol, "BinaryInteger"},
}

// standardTypeLetters is the reverse of standardTypes, keyed by kind and name.
var standardTypeLetters = func() map[standardType]byte {
	m := make(map[standardType]byte, len(standardTypes))
	for c, st := range standardTypes {
		m[st] = c
	}
	return m
}()

// builtinTypes maps the letter following 'B' to a fixed builtin type name.
var builtinTypes = map[byte]string{
	'b': "Builtin.BridgeObject",
	'B': "Builtin.UnsafeValueBuffer",
	'I': "Builtin.IntLiteral",
	'O': "Builtin.UnknownObject",
	'o': "Builtin.NativeObject",
	'p': "Builtin.RawPointer",
	't': "Builtin.SILToken",
	'w': "Builtin.Word",
}

var builtinTypeLetters = func() map[string]byte {
	m := make(map[string]byte, len(builtinTypes))
	for c, name := range builtinTypes {
		m[name] = c
	}
	return m
}()

const (
	builtinIntPrefix   = "Builtin.Int"
	builtinFloatPrefix = "Builtin.FPIEEE"
	builtinVecPrefix   = "Builtin.Vec"
)
