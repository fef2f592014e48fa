package config

const SourceFileExt = ".duet"

// SourceFileExtensions are all recognized source file extensions
var SourceFileExtensions = []string{".duet", ".dt"}

// BundleFileExt is the extension of serialized bytecode bundles.
const BundleFileExt = ".dbc"

// ConfigFileNames are searched, in order, by Find.
var ConfigFileNames = []string{"duet.yaml", "duet.yml", "duet.toml"}

// MainFunctionName names the top-level pseudo-function in frames and traces.
const MainFunctionName = "<main>"

// Built-in function names
const (
	PrintFuncName    = "print"
	LenFuncName      = "len"
	StrFuncName      = "str"
	TypeOfFuncName   = "typeOf"
	PushFuncName     = "push"
	ShareFuncName    = "share"
	ShareGetFuncName = "shareGet"
	ShareSetFuncName = "shareSet"
	HashMapFuncName  = "hashMap"
	MapPutFuncName   = "mapPut"
	MapGetFuncName   = "mapGet"
	MapHasFuncName   = "mapHas"
	MapKeysFuncName  = "mapKeys"
)
