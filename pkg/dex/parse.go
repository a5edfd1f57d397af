package dex

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrSyntax is returned (wrapped) for malformed instruction text
var ErrSyntax = errors.New("instruction syntax error")

var (
	destRE = regexp.MustCompile(`^r(\d+)(?::(\S+))?\s*=\s*`)
	regRE  = regexp.MustCompile(`^r(\d+)(?::(\S+))?$`)
	callRE = regexp.MustCompile(`^(.+)\.([^.(]+)(\(.*\).+)$`)
)

// arithPrefixes are the mnemonic prefixes parsed as Arith
var arithPrefixes = []string{
	"add-", "sub-", "mul-", "div-", "rem-", "and-", "or-", "xor-", "shl-", "shr-",
	"ushr-", "neg-", "not-", "int-to-", "long-to-", "float-to-", "double-to-",
	"cmp", "array-length", "instance-of", "check-cast",
}

// ParseInsn parses one instruction in printer syntax:
//
//	[rD[:type] = ] mnemonic operands [ ; attr attr=value ...]
func ParseInsn(line string) (Instruction, error) {
	text, attrs := splitAttrs(strings.TrimSpace(line))

	var dest *RegArg
	if m := destRE.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		dest = &RegArg{Reg: Reg(n), Type: ArgType(m[2])}
		text = text[len(m[0]):]
	}

	name, rest := text, ""
	if sp := strings.IndexAny(text, " \t"); sp >= 0 {
		name, rest = text[:sp], strings.TrimSpace(text[sp+1:])
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty instruction", ErrSyntax)
	}

	insn, err := parseBody(name, splitOperands(rest), dest)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrSyntax, line, err)
	}
	base := insn.Common()
	base.Dest = dest
	base.Attrs = attrs
	return insn, nil
}

func parseBody(name string, ops []string, dest *RegArg) (Instruction, error) {
	switch name {
	case "nop":
		return &Nop{}, expect(ops, 0)
	case "goto":
		return &Goto{}, expect(ops, 0)
	case "new-instance":
		if err := expect(ops, 1); err != nil {
			return nil, err
		}
		if dest == nil {
			return nil, errors.New("new-instance needs a result register")
		}
		return &NewInstance{Type: ops[0]}, nil
	case "new-array":
		if err := expect(ops, 2); err != nil {
			return nil, err
		}
		args, err := parseOperands(ops[:1])
		if err != nil {
			return nil, err
		}
		return &NewArray{Base: Base{Args: args}, Type: ArgType(ops[1])}, nil
	case "fill-array":
		return parseFillArray(ops)
	case "const":
		if err := expect(ops, 1); err != nil {
			return nil, err
		}
		lit, err := ParseLiteral(ops[0])
		if err != nil {
			return nil, err
		}
		return &Const{Base: Base{Args: []Operand{lit}}}, nil
	case "const-string":
		if err := expect(ops, 1); err != nil {
			return nil, err
		}
		s, err := strconv.Unquote(ops[0])
		if err != nil {
			return nil, fmt.Errorf("bad string literal %s", ops[0])
		}
		return &ConstString{Value: s}, nil
	case "sget", "sput", "iget", "iput":
		return parseFieldInsn(name, ops)
	case "move":
		args, err := parseOperands(ops)
		if err != nil {
			return nil, err
		}
		return &Move{Base: Base{Args: args}}, expect(ops, 1)
	case "return":
		if len(ops) > 1 {
			return nil, errors.New("return takes at most one operand")
		}
		args, err := parseOperands(ops)
		return &Return{Base: Base{Args: args}}, err
	case "move-exception":
		return &MoveException{}, expect(ops, 0)
	case "throw":
		args, err := parseOperands(ops)
		if err != nil {
			return nil, err
		}
		return &Throw{Base: Base{Args: args}}, expect(ops, 1)
	}

	if kind, ok := strings.CutPrefix(name, "invoke-"); ok {
		return parseInvoke(kind, ops)
	}
	if kind, ok := strings.CutPrefix(name, "constructor-"); ok {
		return parseConstructor(kind, ops)
	}
	if strings.HasPrefix(name, "if-") {
		args, err := parseOperands(ops)
		return &If{Base: Base{Args: args}, Op: name}, err
	}
	for _, p := range arithPrefixes {
		if strings.HasPrefix(name, p) {
			args, err := parseOperands(ops)
			return &Arith{Base: Base{Args: args}, Op: name}, err
		}
	}
	return nil, fmt.Errorf("unknown mnemonic %q", name)
}

func parseFillArray(ops []string) (Instruction, error) {
	if err := expect(ops, 2); err != nil {
		return nil, err
	}
	args, err := parseOperands(ops[:1])
	if err != nil {
		return nil, err
	}
	body := ops[1]
	open := strings.Index(body, "{")
	if open < 0 || !strings.HasSuffix(body, "}") {
		return nil, fmt.Errorf("fill-array data %q", body)
	}
	typ := ArgType(strings.TrimSpace(body[:open]))
	elem := elemType(typ)
	var data []int64
	for _, v := range splitOperands(body[open+1 : len(body)-1]) {
		lit, err := ParseLiteral(string(elem) + " " + v)
		if err != nil {
			return nil, err
		}
		data = append(data, lit.Value)
	}
	return &FillArray{Base: Base{Args: args}, Type: typ, Data: data}, nil
}

func parseFieldInsn(name string, ops []string) (Instruction, error) {
	want := map[string]int{"sget": 1, "sput": 2, "iget": 2, "iput": 3}[name]
	if err := expect(ops, want); err != nil {
		return nil, err
	}
	field, err := ParseFieldRef(ops[len(ops)-1])
	if err != nil {
		return nil, err
	}
	args, err := parseOperands(ops[:len(ops)-1])
	if err != nil {
		return nil, err
	}
	base := Base{Args: args}
	switch name {
	case "sget":
		return &SGet{Base: base, Field: field}, nil
	case "sput":
		return &SPut{Base: base, Field: field}, nil
	case "iget":
		return &IGet{Base: base, Field: field}, nil
	}
	return &IPut{Base: base, Field: field}, nil
}

func parseInvoke(kind string, ops []string) (Instruction, error) {
	var typ InvokeKind = -1
	for k, n := range invokeKindNames {
		if n == kind {
			typ = InvokeKind(k)
		}
	}
	if typ < 0 {
		return nil, fmt.Errorf("unknown invoke kind %q", kind)
	}
	args, call, err := parseCall(ops)
	if err != nil {
		return nil, err
	}
	return &Invoke{Base: Base{Args: args}, Type: typ, Call: call}, nil
}

func parseConstructor(kind string, ops []string) (Instruction, error) {
	var typ CtorKind = -1
	for k, n := range ctorKindNames {
		if n == kind {
			typ = CtorKind(k)
		}
	}
	if typ < 0 {
		return nil, fmt.Errorf("unknown constructor kind %q", kind)
	}
	args, call, err := parseCall(ops)
	if err != nil {
		return nil, err
	}
	return &Constructor{Base: Base{Args: args}, Type: typ, Call: call}, nil
}

func parseCall(ops []string) ([]Operand, MethodRef, error) {
	if err := expect(ops, 2); err != nil {
		return nil, MethodRef{}, err
	}
	list := ops[0]
	if !strings.HasPrefix(list, "{") || !strings.HasSuffix(list, "}") {
		return nil, MethodRef{}, fmt.Errorf("argument list %q", list)
	}
	args, err := parseOperands(splitOperands(list[1 : len(list)-1]))
	if err != nil {
		return nil, MethodRef{}, err
	}
	call, err := ParseMethodRef(ops[1])
	return args, call, err
}

// ParseMethodRef parses "Owner.name(args)ret"
func ParseMethodRef(s string) (MethodRef, error) {
	m := callRE.FindStringSubmatch(s)
	if m == nil {
		return MethodRef{}, fmt.Errorf("method reference %q", s)
	}
	return MethodRef{Owner: m[1], Name: m[2], Proto: m[3]}, nil
}

// ParseFieldRef parses "Owner.name" or "Owner.name:type"
func ParseFieldRef(s string) (FieldRef, error) {
	var typ ArgType
	if c := strings.LastIndex(s, ":"); c >= 0 {
		typ = ArgType(s[c+1:])
		s = s[:c]
	}
	dot := strings.LastIndex(s, ".")
	if dot <= 0 || dot == len(s)-1 {
		return FieldRef{}, fmt.Errorf("field reference %q", s)
	}
	return FieldRef{Owner: s[:dot], Name: s[dot+1:], Type: typ}, nil
}

func parseOperands(ops []string) ([]Operand, error) {
	var args []Operand
	for _, op := range ops {
		if m := regRE.FindStringSubmatch(op); m != nil {
			n, _ := strconv.Atoi(m[1])
			args = append(args, &RegArg{Reg: Reg(n), Type: ArgType(m[2])})
			continue
		}
		if strings.HasPrefix(op, "(") {
			return nil, fmt.Errorf("inlined operand %q cannot be parsed", op)
		}
		lit, err := ParseLiteral(op)
		if err != nil {
			return nil, err
		}
		args = append(args, lit)
	}
	return args, nil
}

// ParseLiteral parses "<type> <value>" or a bare integer. Float and double values
// are given in decimal, or as raw bits with a "bits:" prefix.
func ParseLiteral(s string) (*LitArg, error) {
	fields := strings.Fields(s)
	var typ ArgType
	var val string
	switch len(fields) {
	case 1:
		val = fields[0]
	case 2:
		typ, val = ArgType(fields[0]), fields[1]
	default:
		return nil, fmt.Errorf("literal %q", s)
	}

	if raw, ok := strings.CutPrefix(val, "bits:"); ok {
		bits, err := strconv.ParseUint(raw, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("literal %q: %v", s, err)
		}
		return &LitArg{Type: typ, Value: int64(bits)}, nil
	}

	switch typ {
	case TypeFloat:
		f, err := strconv.ParseFloat(val, 32)
		if err != nil {
			return nil, fmt.Errorf("literal %q: %v", s, err)
		}
		return &LitArg{Type: typ, Value: int64(math.Float32bits(float32(f)))}, nil
	case TypeDouble:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("literal %q: %v", s, err)
		}
		return &LitArg{Type: typ, Value: int64(math.Float64bits(f))}, nil
	}
	bitSize := 64
	if typ.IsIntLike() {
		bitSize = 32
	}
	n, err := strconv.ParseInt(val, 0, bitSize)
	if err != nil {
		return nil, fmt.Errorf("literal %q: %v", s, err)
	}
	return &LitArg{Type: typ, Value: n}, nil
}

func expect(ops []string, n int) error {
	if len(ops) != n {
		return fmt.Errorf("want %d operands, got %d", n, len(ops))
	}
	return nil
}

// splitAttrs cuts a trailing " ; attrs" section outside string literals
func splitAttrs(s string) (string, AttrSet) {
	cut := -1
	inStr := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if inStr {
				i++
			}
		case '"':
			inStr = !inStr
		case ';':
			// descriptors contain ';' too, so the attribute list must follow a space
			if !inStr && i > 0 && (s[i-1] == ' ' || s[i-1] == '\t') {
				cut = i
			}
		}
		if cut >= 0 {
			break
		}
	}
	if cut < 0 {
		return s, nil
	}
	var attrs AttrSet
	for _, a := range strings.Fields(s[cut+1:]) {
		k, v, _ := strings.Cut(a, "=")
		attrs.Add(k, v)
	}
	return strings.TrimSpace(s[:cut]), attrs
}

// splitOperands splits on commas outside braces, parentheses and string literals
func splitOperands(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	depth, start := 0, 0
	inStr := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' && inStr:
			i++
		case c == '"':
			inStr = !inStr
		case inStr:
		case c == '{' || c == '(':
			depth++
		case c == '}' || c == ')':
			depth--
		case c == ',' && depth == 0:
			out = append(out, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}
