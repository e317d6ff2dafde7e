package bundle

import "github.com/hashicorp/go-multierror"

// CheckValid returns an aggregated error for any structural problems with
// this bundle, or nil if it's well-formed.
func (b *Bundle) CheckValid() (errs error) {
	if b.Version != dtnVersion {
		errs = multierror.Append(errs, newBundleError("Bundle: wrong version"))
	}

	if pfErr := b.ProcessingFlags.checkValid(); pfErr != nil {
		errs = multierror.Append(errs, pfErr)
	}

	if b.DictionaryLength != 0 {
		errs = multierror.Append(errs, newBundleError("Bundle: dictionary_length must be 0 in this profile"))
	}

	if _, err := b.PayloadBlock(); err != nil {
		errs = multierror.Append(errs, err)
	}

	payloadBlocks := 0
	for _, blk := range b.Blocks {
		if blk.BlockType == PayloadBlockType {
			payloadBlocks++
		}
	}
	if payloadBlocks > 1 {
		errs = multierror.Append(errs, newBundleError("Bundle: more than one PAYLOAD block"))
	}

	if b.ProcessingFlags.Has(IsFragment) == false && (b.FragmentOffset != 0) {
		errs = multierror.Append(errs, newBundleError("Bundle: fragment_offset set without fragment flag"))
	}

	return
}
