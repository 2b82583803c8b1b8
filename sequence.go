package pagedkv

// Sequence is the shape of one generation stream the engine needs: an
// identity, a length, and how much the next token grows it.
type Sequence interface {
	// ID returns the sequence identifier.
	ID() uint64

	// NumTokens returns the current token count.
	NumTokens() int

	// BlocksToAddNewToken reports how many additional physical blocks
	// the sequence's next token requires: 0 when the last logical block
	// has room, 1 when a new logical block starts.
	BlocksToAddNewToken() int
}

// SequenceGroup is a set of sequences spawned together (parallel
// sampling or beam branches of one prompt) that initially share all
// physical blocks.
type SequenceGroup interface {
	// Seqs returns the member sequences keyed by identifier.
	Seqs() map[uint64]Sequence

	// TotalLogicalBlocks is the number of logical blocks needed to hold
	// all current tokens of the group.
	TotalLogicalBlocks() int

	// BlocksToAddNewToken sums the members' pending growth.
	BlocksToAddNewToken() int
}

// Seq is a reference Sequence backed by logical token blocks.
type Seq struct {
	id        uint64
	blockSize int
	blocks    []*LogicalTokenBlock
}

// NewSeq returns a sequence holding the given prompt tokens.
func NewSeq(id uint64, blockSize int, tokens []uint32) *Seq {
	s := &Seq{id: id, blockSize: blockSize}
	s.AppendTokens(tokens)
	return s
}

// ID returns the sequence identifier.
func (s *Seq) ID() uint64 { return s.id }

// NumTokens returns the current token count.
func (s *Seq) NumTokens() (n int) {
	for _, b := range s.blocks {
		n += b.NumTokens()
	}
	return
}

// Tokens returns the full token stream in order.
func (s *Seq) Tokens() []uint32 {
	tokens := make([]uint32, 0, s.NumTokens())
	for _, b := range s.blocks {
		tokens = append(tokens, b.Tokens()...)
	}
	return tokens
}

// NumLogicalBlocks returns how many logical blocks the sequence spans.
func (s *Seq) NumLogicalBlocks() int { return len(s.blocks) }

// LogicalBlocks returns the sequence's logical blocks in order.
func (s *Seq) LogicalBlocks() []*LogicalTokenBlock { return s.blocks }

// AppendToken appends one token, opening a new logical block when the
// last one is full.
func (s *Seq) AppendToken(token uint32) {
	if s.BlocksToAddNewToken() == 1 {
		s.blocks = append(s.blocks, NewLogicalTokenBlock(len(s.blocks), s.blockSize))
	}
	s.blocks[len(s.blocks)-1].AppendToken(token)
}

// AppendTokens appends tokens one by one.
func (s *Seq) AppendTokens(tokens []uint32) {
	for _, token := range tokens {
		s.AppendToken(token)
	}
}

// BlocksToAddNewToken reports whether the next token starts a new
// logical block.
func (s *Seq) BlocksToAddNewToken() int {
	if len(s.blocks) == 0 || s.blocks[len(s.blocks)-1].IsFull() {
		return 1
	}
	return 0
}

// SeqGroup is a reference SequenceGroup.
type SeqGroup struct {
	members []*Seq
	seqs    map[uint64]Sequence
}

// NewSeqGroup groups sibling sequences that share one prompt.
func NewSeqGroup(seqs ...*Seq) *SeqGroup {
	g := &SeqGroup{
		members: seqs,
		seqs:    make(map[uint64]Sequence, len(seqs)),
	}
	for _, s := range seqs {
		g.seqs[s.ID()] = s
	}
	return g
}

// Seqs returns the member sequences keyed by identifier.
func (g *SeqGroup) Seqs() map[uint64]Sequence { return g.seqs }

// TotalLogicalBlocks is the largest member span. At allocation time the
// members hold the same prompt, so this is the group's block need.
func (g *SeqGroup) TotalLogicalBlocks() (n int) {
	for _, s := range g.members {
		if b := s.NumLogicalBlocks(); b > n {
			n = b
		}
	}
	return
}

// BlocksToAddNewToken sums the members' pending growth.
func (g *SeqGroup) BlocksToAddNewToken() (n int) {
	for _, s := range g.members {
		n += s.BlocksToAddNewToken()
	}
	return
}
