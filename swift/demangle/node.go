package demangle

// NodeKind identifies the semantic role of a node in a demangled type tree.
type NodeKind string

const (
	KindUnknown NodeKind = "unknown"

	// contexts and names
	KindModule     NodeKind = "module"
	KindIdentifier NodeKind = "identifier"

	// nominal declarations
	KindStructure NodeKind = "structure"
	KindClass     NodeKind = "class"
	KindEnum      NodeKind = "enum"
	KindProtocol  NodeKind = "protocol"
	KindTypeAlias NodeKind = "typeAlias"

	KindBoundGeneric NodeKind = "boundGeneric"
	KindGenericArgs  NodeKind = "genericArguments"

	KindTuple        NodeKind = "tuple"
	KindTupleElement NodeKind = "tupleElement"

	// function types, one kind per calling convention
	KindFunction         NodeKind = "functionType"
	KindNoEscapeFunction NodeKind = "noEscapeFunctionType"
	KindObjCBlock        NodeKind = "objcBlock"
	KindCFunctionPointer NodeKind = "cFunctionPointer"
	KindThinFunction     NodeKind = "thinFunctionType"
	KindArgumentTuple    NodeKind = "argumentTuple"
	KindProtocolList     NodeKind = "protocolList"
	KindMetatype         NodeKind = "metatype"
	KindExistentialMeta  NodeKind = "existentialMetatype"
	KindGenericParam     NodeKind = "dependentGenericParamType"
	KindDependentMember  NodeKind = "dependentMemberType"
	KindWeak             NodeKind = "weak"
	KindUnowned          NodeKind = "unowned"
	KindUnmanaged        NodeKind = "unmanaged"
	KindBuiltinType      NodeKind = "builtinTypeName"

	// parser-only markers, never returned to callers
	kindEmptyList          NodeKind = "emptyList"
	kindFirstElementMarker NodeKind = "firstElementMarker"
)

// NodeFlags holds auxiliary attributes that tweak formatting semantics.
type NodeFlags struct {
	Async    bool
	Throws   bool
	Variadic bool
}

// Node represents a demangled element.
type Node struct {
	Kind     NodeKind
	Text     string
	Depth    uint32
	Index    uint32
	Children []*Node
	Flags    NodeFlags
}

// NewNode creates a new node with the given kind and text.
func NewNode(kind NodeKind, text string) *Node {
	return &Node{
		Kind: kind,
		Text: text,
	}
}

// Append appends child nodes to the receiver.
func (n *Node) Append(children ...*Node) {
	if len(children) == 0 {
		return
	}
	n.Children = append(n.Children, children...)
}

// Child returns the i-th child or nil.
func (n *Node) Child(i int) *Node {
	if n == nil || i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// Clone shallow-copies the node. Children references are copied as-is.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Kind:  n.Kind,
		Text:  n.Text,
		Depth: n.Depth,
		Index: n.Index,
		Flags: n.Flags,
	}
	if len(n.Children) > 0 {
		out.Children = append([]*Node(nil), n.Children...)
	}
	return out
}

// IsNominal reports whether the node names a struct, class, enum, protocol or type alias.
func (n *Node) IsNominal() bool {
	if n == nil {
		return false
	}
	switch n.Kind {
	case KindStructure, KindClass, KindEnum, KindProtocol, KindTypeAlias:
		return true
	}
	return false
}

// IsFunction reports whether the node is a function type of any convention.
func (n *Node) IsFunction() bool {
	if n == nil {
		return false
	}
	switch n.Kind {
	case KindFunction, KindNoEscapeFunction, KindObjCBlock, KindCFunctionPointer, KindThinFunction:
		return true
	}
	return false
}

// IsContext reports whether the node can be the parent context of a nominal declaration.
func (n *Node) IsContext() bool {
	if n == nil {
		return false
	}
	return n.Kind == KindModule || n.Kind == KindBoundGeneric || n.IsNominal()
}

// ModuleName walks the context chain of a nominal node and returns its module.
func (n *Node) ModuleName() string {
	for cur := n; cur != nil; cur = cur.Context() {
		if cur.Kind == KindModule {
			return cur.Text
		}
	}
	return ""
}

// Context returns the parent context of a nominal node (module, nominal or
// bound generic), or nil.
func (n *Node) Context() *Node {
	if n == nil {
		return nil
	}
	switch {
	case n.IsNominal():
		return n.Child(0)
	case n.Kind == KindBoundGeneric:
		return n.Child(0)
	}
	return nil
}

func (n *Node) isMarker() bool {
	return n != nil && (n.Kind == kindEmptyList || n.Kind == kindFirstElementMarker)
}

func (n *Node) isType() bool {
	if n == nil || n.isMarker() {
		return false
	}
	switch n.Kind {
	case KindModule, KindIdentifier, KindGenericArgs, KindTupleElement, KindArgumentTuple:
		return false
	}
	return true
}
